// Package retry re-invokes an operation that fails with a transient error.
//
// A Policy is a fixed attempt budget and a constant delay. There is no
// backoff and no jitter: attempt k starts (k-1)*Delay after the first one
// plus the time spent in the operation itself.
//
//	text, err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) (string, error) {
//	    return llm.Complete(ctx, provider, messages)
//	}, retry.WithLogger(log), retry.WithName("completion"))
//
// Only errors the classifier accepts are retried. Anything else is
// returned unchanged on first occurrence. When the last attempt fails
// transiently, Do returns a RETRY_EXHAUSTED error whose cause is the last
// failure.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/logging"
)

const (
	// DefaultMaxAttempts is the total number of invocations, first included.
	DefaultMaxAttempts = 3

	// DefaultDelay is the pause between attempts.
	DefaultDelay = 5 * time.Second
)

// Policy bounds how often and how far apart an operation is attempted.
type Policy struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
}

// DefaultPolicy returns 3 attempts, 5 seconds apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
}

// Validate checks MaxAttempts >= 1 and Delay >= 0.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.Newf(errors.ErrCodeConfig, "retry max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return errors.Newf(errors.ErrCodeConfig, "retry delay must not be negative, got %s", p.Delay)
	}
	return nil
}

// Classifier reports whether an error is transient.
type Classifier func(error) bool

// State is a step of a single Do call.
type State string

const (
	StateReady       State = "ready"
	StateAttempting  State = "attempting"
	StateWaiting     State = "waiting"
	StateSuccess     State = "success"
	StateExhausted   State = "exhausted"
	StateFailed      State = "failed_nontransient"
	StateInterrupted State = "interrupted"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateExhausted, StateFailed, StateInterrupted:
		return true
	default:
		return false
	}
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in that case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type settings struct {
	name       string
	classifier Classifier
	logger     *logging.Logger
	sleep      Sleeper
	onRetry    func(attempt int, err error, delay time.Duration)
	onState    func(from, to State, attempt int)
}

// Option customises a single Do call.
type Option func(*settings)

// WithName labels the operation in logs and in the exhaustion error.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// WithClassifier replaces the default errors.IsRetryable predicate.
func WithClassifier(c Classifier) Option {
	return func(s *settings) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithLogger reports failed attempts through l.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithSleeper replaces the timer-based wait. Tests use it to avoid real delays.
func WithSleeper(sl Sleeper) Option {
	return func(s *settings) {
		if sl != nil {
			s.sleep = sl
		}
	}
}

// OnRetry is called after a transient failure, before the delay.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) {
		s.onRetry = fn
	}
}

// OnState is called on every state transition.
func OnState(fn func(from, to State, attempt int)) Option {
	return func(s *settings) {
		s.onState = fn
	}
}

// Do runs op under policy p. See the package documentation for semantics.
// An invalid policy is reported without invoking op.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var zero T

	if err := p.Validate(); err != nil {
		return zero, err
	}

	s := settings{
		name:       "operation",
		classifier: errors.IsRetryable,
		logger:     logging.Discard(),
		sleep:      Sleep,
	}
	for _, opt := range opts {
		opt(&s)
	}

	state := StateReady
	transition := func(to State, attempt int) {
		if s.onState != nil {
			s.onState(state, to, attempt)
		}
		state = to
	}

	for attempt := 1; ; attempt++ {
		transition(StateAttempting, attempt)

		result, err := op(ctx)
		if err == nil {
			transition(StateSuccess, attempt)
			return result, nil
		}

		if !s.classifier(err) {
			s.logger.AttemptAborted(s.name, attempt, err)
			transition(StateFailed, attempt)
			return zero, err
		}

		if attempt >= p.MaxAttempts {
			s.logger.RetriesExhausted(s.name, attempt, err)
			transition(StateExhausted, attempt)
			return zero, errors.Exhausted(s.name, attempt, err)
		}

		s.logger.AttemptFailed(s.name, attempt, p.MaxAttempts, err, p.Delay)
		if s.onRetry != nil {
			s.onRetry(attempt, err, p.Delay)
		}

		transition(StateWaiting, attempt)
		if waitErr := s.sleep(ctx, p.Delay); waitErr != nil {
			transition(StateInterrupted, attempt)
			return zero, errors.Wrap(waitErr, fmt.Sprintf("%s: interrupted after attempt %d", s.name, attempt),
				errors.WithMetadata("last_error", err.Error()))
		}
	}
}
