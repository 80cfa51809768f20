package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Error is a classified error. The zero value is not useful; use New.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means derive from code
	timestamp time.Time
	agent     string
	task      string
}

var (
	_ error          = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

// Error returns the message followed by the cause, if any.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// Retryable reports whether the failed operation may succeed if repeated.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.code == ErrCodeQuotaExceeded {
		return false
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error was created.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// Agent returns the crew agent the error is attributed to, if any.
func (e *Error) Agent() string {
	return e.agent
}

// Task returns the crew task the error is attributed to, if any.
func (e *Error) Task() string {
	return e.task
}

// Attempts returns the attempt count recorded on retry exhaustion, or 0.
func (e *Error) Attempts() int {
	n, _ := strconv.Atoi(e.metadata["attempts"])
	return n
}

type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
	Timestamp string            `json:"timestamp,omitempty"`
	Agent     string            `json:"agent,omitempty"`
	Task      string            `json:"task,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:      e.code,
		Category:  e.category,
		Message:   e.message,
		Metadata:  e.metadata,
		Retryable: e.Retryable(),
		Agent:     e.agent,
		Task:      e.task,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// Option configures an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithAgent attributes the error to a crew agent.
func WithAgent(name string) Option {
	return func(e *Error) {
		e.agent = name
	}
}

// WithTask attributes the error to a crew task.
func WithTask(name string) Option {
	return func(e *Error) {
		e.task = name
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Config reports missing or invalid configuration. The missing keys are
// listed in the message and recorded under the "missing" metadata key.
func Config(message string, missing ...string) *Error {
	if len(missing) == 0 {
		return New(ErrCodeConfig, message)
	}
	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	list := strings.Join(sorted, ", ")
	return New(ErrCodeConfig, fmt.Sprintf("%s: %s", message, list), WithMetadata("missing", list))
}

// Timeout creates a timeout error.
func Timeout(message string, opts ...Option) *Error {
	return New(ErrCodeTimeout, message, opts...)
}

// Unavailable creates an upstream-unavailable error.
func Unavailable(message string, opts ...Option) *Error {
	return New(ErrCodeUnavailable, message, opts...)
}

// RateLimited creates a rate limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimit, message, opts...)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string, opts ...Option) *Error {
	return New(ErrCodeUnauthorized, message, opts...)
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}

// Exhausted reports that op failed on every one of its attempts. The last
// failure is kept as the cause so diagnostics survive.
func Exhausted(op string, attempts int, last error) *Error {
	msg := fmt.Sprintf("all %d attempts exhausted", attempts)
	if op != "" {
		msg = fmt.Sprintf("%s: %s", op, msg)
	}
	return New(ErrCodeRetryExhausted, msg,
		WithCause(last),
		WithMetadata("attempts", strconv.Itoa(attempts)))
}

// TaskFailed creates a task failure attributed to a task and agent.
func TaskFailed(task, agent string, cause error) *Error {
	return New(ErrCodeTaskFailed, fmt.Sprintf("task %s failed", task),
		WithTask(task), WithAgent(agent), WithCause(cause))
}
