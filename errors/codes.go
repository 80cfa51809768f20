package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates rate limiting or quota exhaustion.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected or unclassified errors.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Request timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Upstream 5xx or overloaded
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Connection reset, EOF, DNS

	// Resource errors
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"   // 429
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED" // Billing or quota exhausted

	// Permanent errors
	ErrCodeConfig         ErrorCode = "CONFIG"          // Missing or invalid configuration
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"    // Rejected credentials
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"   // Malformed request
	ErrCodeCanceled       ErrorCode = "CANCELED"        // Context canceled
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED" // All attempts failed
	ErrCodeTaskFailed     ErrorCode = "TASK_FAILED"     // Crew task failed

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr:
		return CategoryTransient

	case ErrCodeRateLimit, ErrCodeQuotaExceeded:
		return CategoryResource

	case ErrCodeConfig, ErrCodeUnauthorized, ErrCodeInvalidInput, ErrCodeCanceled,
		ErrCodeRetryExhausted, ErrCodeTaskFailed:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
// Quota exhaustion is a resource error but retrying it only burns attempts.
func (c ErrorCode) DefaultRetryable() bool {
	if c == ErrCodeQuotaExceeded {
		return false
	}
	return c.DefaultCategory().IsRetryable()
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:        "request timed out",
	ErrCodeUnavailable:    "service temporarily unavailable",
	ErrCodeNetworkErr:     "network error",
	ErrCodeRateLimit:      "rate limit exceeded",
	ErrCodeQuotaExceeded:  "quota exceeded",
	ErrCodeConfig:         "invalid configuration",
	ErrCodeUnauthorized:   "authentication failed",
	ErrCodeInvalidInput:   "invalid input",
	ErrCodeCanceled:       "operation canceled",
	ErrCodeRetryExhausted: "all retries exhausted",
	ErrCodeTaskFailed:     "task failed",
	ErrCodeInternal:       "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
