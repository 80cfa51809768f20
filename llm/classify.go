package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vinayprograms/blogcrew/errors"
)

// Classify converts an SDK or transport error into the error taxonomy.
// Errors that are already classified pass through unchanged. The HTTP
// status wins over message text; message heuristics are the last resort.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.AsError(err) != nil {
		return err
	}

	msg := fmt.Sprintf("%s request failed", provider)
	meta := errors.WithMetadata("provider", provider)

	switch {
	case stderrors.Is(err, context.Canceled):
		return errors.WrapWithCode(err, errors.ErrCodeCanceled, msg, meta)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.WrapWithCode(err, errors.ErrCodeTimeout, msg, meta)
	}

	if code := statusCode(err); code != 0 {
		return errors.WrapWithCode(err, codeForStatus(code, err), msg, meta,
			errors.WithMetadata("status", fmt.Sprint(code)))
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return errors.WrapWithCode(err, codeForGRPC(st.Code(), err), msg, meta,
			errors.WithMetadata("grpc_code", st.Code().String()))
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.WrapWithCode(err, errors.ErrCodeTimeout, msg, meta)
		}
		return errors.WrapWithCode(err, errors.ErrCodeNetworkErr, msg, meta)
	}

	return errors.WrapWithCode(err, codeFromMessage(err), msg, meta)
}

// IsTransient reports whether a retry of the failed call may succeed.
func IsTransient(err error) bool {
	return errors.IsRetryable(err)
}

// statusCode extracts the HTTP status from the SDK error types.
func statusCode(err error) int {
	var oaiErr *openai.Error
	if stderrors.As(err, &oaiErr) {
		return oaiErr.StatusCode
	}
	var antErr *anthropic.Error
	if stderrors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

func codeForStatus(code int, err error) errors.ErrorCode {
	switch {
	case code == http.StatusTooManyRequests:
		if isBillingError(err) {
			return errors.ErrCodeQuotaExceeded
		}
		return errors.ErrCodeRateLimit
	case code == http.StatusPaymentRequired:
		return errors.ErrCodeQuotaExceeded
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return errors.ErrCodeUnauthorized
	case code == http.StatusRequestTimeout:
		return errors.ErrCodeTimeout
	case code >= 500:
		// Includes Anthropic's 529 overloaded.
		return errors.ErrCodeUnavailable
	case code >= 400:
		return errors.ErrCodeInvalidInput
	default:
		return errors.ErrCodeInternal
	}
}

func codeForGRPC(code codes.Code, err error) errors.ErrorCode {
	switch code {
	case codes.ResourceExhausted:
		if isBillingError(err) {
			return errors.ErrCodeQuotaExceeded
		}
		return errors.ErrCodeRateLimit
	case codes.Unavailable, codes.Aborted, codes.Internal:
		return errors.ErrCodeUnavailable
	case codes.DeadlineExceeded:
		return errors.ErrCodeTimeout
	case codes.Canceled:
		return errors.ErrCodeCanceled
	case codes.Unauthenticated, codes.PermissionDenied:
		return errors.ErrCodeUnauthorized
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.OutOfRange:
		return errors.ErrCodeInvalidInput
	default:
		return errors.ErrCodeInternal
	}
}

func codeFromMessage(err error) errors.ErrorCode {
	switch {
	case isBillingError(err):
		return errors.ErrCodeQuotaExceeded
	case isNetworkError(err):
		return errors.ErrCodeNetworkErr
	case isRateLimitError(err):
		return errors.ErrCodeRateLimit
	case isServerError(err):
		return errors.ErrCodeUnavailable
	default:
		return errors.ErrCodeInternal
	}
}

func containsAny(err error, needles ...string) bool {
	s := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	return containsAny(err, "rate limit", "rate_limit", "too many requests", "429", "overloaded", "capacity")
}

func isServerError(err error) bool {
	return containsAny(err, "500", "502", "503", "504", "529",
		"internal server error", "bad gateway", "service unavailable",
		"gateway timeout", "temporarily unavailable")
}

// isBillingError matches quota and payment failures, which are never
// worth retrying.
func isBillingError(err error) bool {
	return containsAny(err, "billing", "payment", "credits", "quota exceeded",
		"insufficient_quota", "exceeded your current quota", "subscription")
}

func isNetworkError(err error) bool {
	if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return containsAny(err, "connection reset", "connection refused", "broken pipe", "no such host")
}
