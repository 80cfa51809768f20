package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	bcerrors "github.com/vinayprograms/blogcrew/errors"
)

func newRecorder(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracerFrom(tp, "test", debug), rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestGetTracer_DefaultIsNoop(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	if tr == nil {
		t.Fatal("GetTracer should never return nil")
	}
	_, span := tr.StartLLMSpan(context.Background(), "llm.chat")
	tr.EndLLMSpan(span, LLMSpanOptions{Model: "m"}, nil)
}

func TestSetGlobalTracer(t *testing.T) {
	tr, _ := newRecorder(false)
	SetGlobalTracer(tr)
	defer SetGlobalTracer(nil)

	if GetTracer() != tr {
		t.Error("expected global tracer to be returned")
	}
}

func TestLLMSpan(t *testing.T) {
	tr, rec := newRecorder(false)

	_, span := tr.StartLLMSpan(context.Background(), "llm.chat")
	tr.EndLLMSpan(span, LLMSpanOptions{
		Model:     "gpt-4o-mini",
		Provider:  "openai",
		TokensIn:  10,
		TokensOut: 20,
		Prompt:    "secret prompt",
	}, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "llm.chat" {
		t.Errorf("name = %s", s.Name())
	}
	if v, _ := attr(s.Attributes(), "llm.model"); v.AsString() != "gpt-4o-mini" {
		t.Errorf("llm.model = %v", v.AsString())
	}
	if v, _ := attr(s.Attributes(), "llm.tokens.output"); v.AsInt64() != 20 {
		t.Errorf("llm.tokens.output = %d", v.AsInt64())
	}
	if _, ok := attr(s.Attributes(), "llm.prompt"); ok {
		t.Error("prompt must not be recorded without debug")
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v", s.Status().Code)
	}
}

func TestLLMSpan_DebugIncludesContent(t *testing.T) {
	tr, rec := newRecorder(true)

	_, span := tr.StartLLMSpan(context.Background(), "llm.chat")
	tr.EndLLMSpan(span, LLMSpanOptions{Prompt: "p", Response: strings.Repeat("x", 5000)}, nil)

	s := rec.Ended()[0]
	if v, ok := attr(s.Attributes(), "llm.prompt"); !ok || v.AsString() != "p" {
		t.Error("expected prompt in debug mode")
	}
	v, _ := attr(s.Attributes(), "llm.response")
	if len(v.AsString()) != 4003 {
		t.Errorf("response should be truncated, got len %d", len(v.AsString()))
	}
}

func TestToolSpan_Error(t *testing.T) {
	tr, rec := newRecorder(false)

	_, span := tr.StartToolSpan(context.Background(), "web_search")
	tr.EndToolSpan(span, ToolSpanOptions{
		Tool: "web_search",
		Args: map[string]interface{}{"query": "go generics", "count": 5},
	}, errors.New("boom"))

	s := rec.Ended()[0]
	if s.Name() != "tool.web_search" {
		t.Errorf("name = %s", s.Name())
	}
	if v, _ := attr(s.Attributes(), "tool.arg.query"); v.AsString() != "go generics" {
		t.Errorf("tool.arg.query = %q", v.AsString())
	}
	if v, _ := attr(s.Attributes(), "tool.arg.count"); v.AsString() != "5" {
		t.Errorf("tool.arg.count = %q", v.AsString())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v", s.Status().Code)
	}
}

func TestRunTaskAttemptSpans_Nest(t *testing.T) {
	tr, rec := newRecorder(false)

	ctx, run := tr.StartRunSpan(context.Background(), "run-1", "topic")
	ctx, task := tr.StartTaskSpan(ctx, "research", "researcher")
	_, attempt := tr.StartAttemptSpan(ctx, "completion", 1, 3)
	tr.EndAttemptSpan(attempt, true, errors.New("503"))
	tr.EndTaskSpan(task, TaskSpanOptions{Iterations: 2}, nil)
	run.End()

	spans := rec.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	att, tsk, root := spans[0], spans[1], spans[2]
	if att.Parent().SpanID() != tsk.SpanContext().SpanID() {
		t.Error("attempt span should be a child of the task span")
	}
	if tsk.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Error("task span should be a child of the run span")
	}
	if v, _ := attr(att.Attributes(), "retry.transient"); !v.AsBool() {
		t.Error("expected retry.transient=true")
	}
	if v, _ := attr(root.Attributes(), "run.id"); v.AsString() != "run-1" {
		t.Errorf("run.id = %q", v.AsString())
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), false, ProviderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr string
	}{
		{"grpc default", ProviderConfig{Endpoint: "localhost:4317"}, ""},
		{"http with scheme", ProviderConfig{Endpoint: "http://localhost:4318", Protocol: ProtocolHTTP}, ""},
		{"missing endpoint", ProviderConfig{ServiceName: "x"}, "telemetry.endpoint"},
		{"scheme only", ProviderConfig{Endpoint: "https://"}, "telemetry.endpoint"},
		{"unknown protocol", ProviderConfig{Endpoint: "localhost:4317", Protocol: "udp"}, "udp"},
		{"negative batch timeout", ProviderConfig{Endpoint: "localhost:4317", BatchTimeout: -time.Second}, "negative"},
		{"negative export timeout", ProviderConfig{Endpoint: "localhost:4317", ExportTimeout: -time.Second}, "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
			if !bcerrors.Is(err, bcerrors.ErrCodeConfig) {
				t.Errorf("err = %v, want CONFIG", err)
			}
		})
	}
}

func TestSetup_HTTPExportsOnShutdown(t *testing.T) {
	var (
		mu      sync.Mutex
		exports int
		auth    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == "/v1/traces" {
			exports++
			auth = r.Header.Get("Authorization")
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer SetGlobalTracer(nil)

	flush, err := Setup(context.Background(), true, ProviderConfig{
		Endpoint:      srv.URL,
		Protocol:      ProtocolHTTP,
		Insecure:      true,
		Headers:       map[string]string{"Authorization": "Bearer token"},
		BatchTimeout:  time.Hour,
		ExportTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := GetTracer().StartRunSpan(context.Background(), "run-1", "Go")
	span.End()

	if err := flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if exports == 0 {
		t.Fatal("no spans exported before shutdown returned")
	}
	if auth != "Bearer token" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestInitProvider_RequiresEndpoint(t *testing.T) {
	_, err := InitProvider(context.Background(), ProviderConfig{ServiceName: "x"})
	if err == nil {
		t.Fatal("expected error without endpoint")
	}
}

func TestInitProvider_UnknownProtocol(t *testing.T) {
	_, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4317", Protocol: "udp"})
	if err == nil || !strings.Contains(err.Error(), "udp") {
		t.Fatalf("expected protocol error, got %v", err)
	}
}
