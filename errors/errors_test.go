package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		code          ErrorCode
		wantCategory  ErrorCategory
		wantRetryable bool
	}{
		{"timeout", ErrCodeTimeout, CategoryTransient, true},
		{"unavailable", ErrCodeUnavailable, CategoryTransient, true},
		{"network", ErrCodeNetworkErr, CategoryTransient, true},
		{"rate_limit", ErrCodeRateLimit, CategoryResource, true},
		{"quota", ErrCodeQuotaExceeded, CategoryResource, false},
		{"config", ErrCodeConfig, CategoryPermanent, false},
		{"unauthorized", ErrCodeUnauthorized, CategoryPermanent, false},
		{"exhausted", ErrCodeRetryExhausted, CategoryPermanent, false},
		{"internal", ErrCodeInternal, CategoryInternal, false},
		{"unknown", ErrorCode("BOGUS"), CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom")
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Retryable() != tt.wantRetryable {
				t.Errorf("Retryable() = %v, want %v", err.Retryable(), tt.wantRetryable)
			}
			if tt.code.DefaultRetryable() != tt.wantRetryable {
				t.Errorf("DefaultRetryable() = %v, want %v", tt.code.DefaultRetryable(), tt.wantRetryable)
			}
			if err.Timestamp().IsZero() {
				t.Error("Timestamp() should not be zero")
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrCodeInvalidInput, "topic %q is empty", "")
	if err.Error() != `topic "" is empty` {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(ErrCodeInternal, "flaky", WithRetryable(true))
	if !err.Retryable() {
		t.Error("explicit retryable override should win")
	}
	if !IsRetryable(fmt.Errorf("outer: %w", err)) {
		t.Error("IsRetryable should see through fmt wrapping")
	}
}

func TestConfig(t *testing.T) {
	err := Config("missing required secrets", "SERPER_API_KEY", "GROQ_API_KEY")
	if err.Code() != ErrCodeConfig {
		t.Fatalf("Code() = %v", err.Code())
	}
	if got := err.Metadata()["missing"]; got != "GROQ_API_KEY, SERPER_API_KEY" {
		t.Errorf("missing metadata = %q", got)
	}
	if !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("message should list keys: %s", err.Error())
	}
	if IsRetryable(err) {
		t.Error("configuration errors must not be retryable")
	}
}

func TestExhausted(t *testing.T) {
	last := RateLimited("groq: 429")
	err := Exhausted("completion", 3, last)

	if err.Code() != ErrCodeRetryExhausted {
		t.Errorf("Code() = %v", err.Code())
	}
	if err.Attempts() != 3 {
		t.Errorf("Attempts() = %d, want 3", err.Attempts())
	}
	if IsRetryable(err) {
		t.Error("exhaustion must not be retryable even when the cause is")
	}
	if !errors.Is(err, last) {
		t.Error("exhaustion should chain the last error")
	}
	if Cause(err) != last {
		t.Errorf("Cause() = %v, want the last error", Cause(err))
	}
	if !strings.HasPrefix(err.Error(), "completion: all 3 attempts exhausted") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestTaskFailed(t *testing.T) {
	cause := Unauthorized("bad key")
	err := TaskFailed("research", "researcher", cause)
	if err.Task() != "research" || err.Agent() != "researcher" {
		t.Errorf("attribution = %s/%s", err.Task(), err.Agent())
	}
	if Code(Cause(err)) != ErrCodeUnauthorized {
		t.Error("cause classification should stay reachable")
	}
}

func TestWrap(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if Wrap(nil, "x") != nil {
			t.Error("Wrap(nil) should be nil")
		}
	})

	t.Run("preserves classification", func(t *testing.T) {
		inner := Timeout("read timed out", WithMetadata("provider", "groq"))
		w := Wrap(inner, "completion")
		if w.Code() != ErrCodeTimeout || !w.Retryable() {
			t.Errorf("wrapped = %v/%v", w.Code(), w.Retryable())
		}
		if w.Metadata()["provider"] != "groq" {
			t.Error("metadata should carry over")
		}
		if w.Error() != "completion: read timed out" {
			t.Errorf("Error() = %q", w.Error())
		}
	})

	t.Run("context deadline", func(t *testing.T) {
		w := Wrap(context.DeadlineExceeded, "waiting")
		if w.Code() != ErrCodeTimeout {
			t.Errorf("Code() = %v", w.Code())
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		w := Wrap(context.Canceled, "waiting")
		if w.Code() != ErrCodeCanceled || w.Retryable() {
			t.Errorf("Code() = %v retryable=%v", w.Code(), w.Retryable())
		}
	})

	t.Run("plain error", func(t *testing.T) {
		w := Wrap(errors.New("boom"), "doing")
		if w.Code() != ErrCodeInternal {
			t.Errorf("Code() = %v", w.Code())
		}
	})
}

func TestWrapWithCode(t *testing.T) {
	w := WrapWithCode(errors.New("dial tcp: reset"), ErrCodeNetworkErr, "search")
	if !IsTransient(w) {
		t.Error("expected transient")
	}
	if WrapWithCode(nil, ErrCodeNetworkErr, "x") != nil {
		t.Error("nil in, nil out")
	}
}

func TestQueriesOnPlainErrors(t *testing.T) {
	plain := errors.New("plain")
	if Code(plain) != "" {
		t.Error("Code of plain error should be empty")
	}
	if IsRetryable(plain) || IsTransient(plain) || IsPermanent(plain) {
		t.Error("plain errors are unclassified")
	}
	if AsError(plain) != nil {
		t.Error("AsError should be nil")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := Exhausted("completion", 2, Unavailable("503"))
	data, mErr := json.Marshal(err)
	if mErr != nil {
		t.Fatalf("marshal: %v", mErr)
	}

	var got map[string]interface{}
	if uErr := json.Unmarshal(data, &got); uErr != nil {
		t.Fatalf("unmarshal: %v", uErr)
	}
	if got["code"] != "RETRY_EXHAUSTED" {
		t.Errorf("code = %v", got["code"])
	}
	if got["retryable"] != false {
		t.Errorf("retryable = %v", got["retryable"])
	}
	if got["cause"] != "503" {
		t.Errorf("cause = %v", got["cause"])
	}
}

func TestDescriptions(t *testing.T) {
	if ErrCodeRetryExhausted.Description() != "all retries exhausted" {
		t.Error("unexpected description")
	}
	if ErrorCode("NOPE").Description() != "unknown error" {
		t.Error("unknown codes should describe as unknown")
	}
}

func TestContains(t *testing.T) {
	err := TaskFailed("research", "researcher", Exhausted("llm", 3, RateLimited("429")))

	if !Contains(err, ErrCodeRetryExhausted) {
		t.Error("exhaustion below a task failure should be found")
	}
	if !Contains(err, ErrCodeRateLimit) {
		t.Error("root cause code should be found")
	}
	if Contains(err, ErrCodeConfig) {
		t.Error("absent code reported")
	}
	if Contains(nil, ErrCodeInternal) {
		t.Error("nil error contains nothing")
	}
}
