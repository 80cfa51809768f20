package shutdown

import (
	"context"
	"time"

	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/logging"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.Internal("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.Timeout("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.Internal("one or more shutdown handlers failed")
)

// Func releases one resource. ctx carries the shutdown deadline.
type Func func(ctx context.Context) error

// HandlerResult contains the result of a single handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	// Err is nil when every handler succeeded.
	Err error
}

// Failed returns true if any handler failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the coordinator.
type Config struct {
	// Timeout bounds ShutdownWithTimeout when it is given zero.
	// Default: 10 seconds
	Timeout time.Duration

	// ContinueOnError keeps running later phases after a handler fails.
	// Default: true
	ContinueOnError bool

	// Logger reports signals and handler results. Default: discard.
	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return errors.Newf(errors.ErrCodeConfig, "shutdown timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		ContinueOnError: true,
	}
}

type registration struct {
	name  string
	phase int
	fn    Func
}
