// Package errors provides the structured error taxonomy used across
// blogcrew. Every failure that crosses a package boundary is an *Error
// carrying a code and a category, so callers can decide whether to retry
// without knowing which SDK or transport produced it.
//
// # Error Categories
//
//   - Transient: temporary failures where retry may succeed (timeouts, 5xx, resets)
//   - Resource: rate limits and quotas
//   - Permanent: failures retry will not fix (bad input, missing config, auth)
//   - Internal: anything unclassified
//
// Transient and resource errors are retryable unless the error carries an
// explicit override (billing failures are resource errors that never retry).
//
// # Usage
//
//	err := errors.New(errors.ErrCodeRateLimit, "groq: too many requests")
//	if errors.IsRetryable(err) {
//	    // wait and try again
//	}
//
// Wrapping keeps the code of the inner error:
//
//	wrapped := errors.Wrap(err, "editing draft")
//	errors.Is(wrapped, errors.ErrCodeRateLimit) // true
//
// Retry exhaustion is its own permanent error chaining the last cause:
//
//	final := errors.Exhausted("completion", 3, err)
//	errors.IsRetryable(final) // false
//	errors.Cause(final)       // the original rate limit error
package errors
