// Package search provides the web search backends used by the researcher.
package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vinayprograms/blogcrew/errors"
)

// DefaultCount is the number of results returned when none is requested.
const DefaultCount = 5

// MaxCount caps the results of a single search.
const MaxCount = 10

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider runs web searches.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]Result, error)
}

// New creates a provider by name. Serper requires apiKey; DuckDuckGo
// ignores it.
func New(provider, apiKey string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "serper", "":
		if apiKey == "" {
			return nil, errors.Config("serper search is missing settings", "api_key")
		}
		return NewSerper(apiKey), nil
	case "duckduckgo":
		return NewDuckDuckGo(), nil
	default:
		return nil, errors.Newf(errors.ErrCodeConfig, "unsupported search provider: %s", provider)
	}
}

// ClampCount bounds count to 1..MaxCount, mapping <= 0 to DefaultCount.
func ClampCount(count int) int {
	switch {
	case count <= 0:
		return DefaultCount
	case count > MaxCount:
		return MaxCount
	default:
		return count
	}
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// transportError classifies a failure to get any response at all.
func transportError(provider string, err error) error {
	msg := fmt.Sprintf("%s search failed", provider)
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, msg)
	}
	return errors.WrapWithCode(err, errors.ErrCodeNetworkErr, msg)
}

// statusError classifies a non-200 response.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	text := strings.TrimSpace(string(body))

	code := errors.ErrCodeInvalidInput
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		code = errors.ErrCodeRateLimit
	case resp.StatusCode == http.StatusPaymentRequired,
		strings.Contains(strings.ToLower(text), "credits"):
		code = errors.ErrCodeQuotaExceeded
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		code = errors.ErrCodeUnauthorized
	case resp.StatusCode == http.StatusRequestTimeout:
		code = errors.ErrCodeTimeout
	case resp.StatusCode >= 500:
		code = errors.ErrCodeUnavailable
	}

	return errors.New(code, fmt.Sprintf("%s search error (%d): %s", provider, resp.StatusCode, text),
		errors.WithMetadata("provider", provider),
		errors.WithMetadata("status", fmt.Sprint(resp.StatusCode)))
}
