package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap adds context to err while preserving its classification.
// If err is nil, Wrap returns nil. Context errors become TIMEOUT or
// CANCELED; anything else unclassified becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var inner *Error
	if errors.As(err, &inner) {
		wrapped := &Error{
			code:      inner.code,
			category:  inner.category,
			message:   message,
			cause:     err,
			metadata:  inner.Metadata(),
			retryable: inner.retryable,
			timestamp: inner.timestamp,
			agent:     inner.agent,
			task:      inner.task,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error under a specific code, discarding any
// classification the cause carried.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// AsError returns the outermost *Error in the chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Is reports whether the outermost *Error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	if e := AsError(err); e != nil {
		return e.code == code
	}
	return false
}

// Code extracts the error code, or "" when err is not classified.
func Code(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.code
	}
	return ""
}

// IsCategory reports whether the outermost *Error has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	if e := AsError(err); e != nil {
		return e.category == category
	}
	return false
}

// IsRetryable reports whether err is classified as retryable.
// Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	if e := AsError(err); e != nil {
		return e.Retryable()
	}
	return false
}

// IsTransient checks if the error is in the transient category.
func IsTransient(err error) bool {
	return IsCategory(err, CategoryTransient)
}

// IsPermanent checks if the error is in the permanent category.
func IsPermanent(err error) bool {
	return IsCategory(err, CategoryPermanent)
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Contains reports whether any *Error in the chain has the given code.
func Contains(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
