// OpenTelemetry tracing for runs, tasks, model calls and tools.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with blogcrew-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include content in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return Noop()
	}
	return globalTracer
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracerFrom creates a tracer from an explicit provider.
func NewTracerFrom(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Run and Task Spans ---

// StartRunSpan starts the root span of a blog run.
func (t *Tracer) StartRunSpan(ctx context.Context, runID, topic string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "blog.run", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.topic", truncate(topic, 500)),
	)
	return ctx, span
}

// StartTaskSpan starts a span for one crew task.
func (t *Tracer) StartTaskSpan(ctx context.Context, task, agent string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task."+task, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("task.name", task),
		attribute.String("task.agent", agent),
	)
	return ctx, span
}

// TaskSpanOptions contains options for task spans.
type TaskSpanOptions struct {
	Iterations int
	TokensIn   int
	TokensOut  int
	Output     string // Only included if debug=true
}

// EndTaskSpan ends a task span with attributes.
func (t *Tracer) EndTaskSpan(span trace.Span, opts TaskSpanOptions, err error) {
	span.SetAttributes(
		attribute.Int("task.iterations", opts.Iterations),
		attribute.Int("task.tokens.input", opts.TokensIn),
		attribute.Int("task.tokens.output", opts.TokensOut),
	)
	if t.debug && opts.Output != "" {
		span.SetAttributes(attribute.String("task.output", truncate(opts.Output, 4000)))
	}
	end(span, err)
}

// --- Retry Spans ---

// StartAttemptSpan starts a span for one attempt of a retried operation.
func (t *Tracer) StartAttemptSpan(ctx context.Context, op string, attempt, maxAttempts int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "retry."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.Int("retry.attempt", attempt),
		attribute.Int("retry.max_attempts", maxAttempts),
	)
	return ctx, span
}

// EndAttemptSpan ends an attempt span, marking whether its error is transient.
func (t *Tracer) EndAttemptSpan(span trace.Span, transient bool, err error) {
	if err != nil {
		span.SetAttributes(attribute.Bool("retry.transient", transient))
	}
	end(span, err)
}

// --- LLM Spans ---

// LLMSpanOptions contains options for LLM call spans.
type LLMSpanOptions struct {
	Model     string
	Provider  string
	TokensIn  int
	TokensOut int
	ToolCalls int
	Prompt    string // Only included if debug=true
	Response  string // Only included if debug=true
}

// StartLLMSpan starts a span for an LLM call.
func (t *Tracer) StartLLMSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

// EndLLMSpan ends an LLM span with attributes.
func (t *Tracer) EndLLMSpan(span trace.Span, opts LLMSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.model", opts.Model),
		attribute.String("llm.provider", opts.Provider),
		attribute.Int("llm.tokens.input", opts.TokensIn),
		attribute.Int("llm.tokens.output", opts.TokensOut),
		attribute.Int("llm.tool_calls", opts.ToolCalls),
	}

	if t.debug {
		if opts.Prompt != "" {
			attrs = append(attrs, attribute.String("llm.prompt", truncate(opts.Prompt, 4000)))
		}
		if opts.Response != "" {
			attrs = append(attrs, attribute.String("llm.response", truncate(opts.Response, 4000)))
		}
	}

	span.SetAttributes(attrs...)
	end(span, err)
}

// --- Tool Spans ---

// ToolSpanOptions contains options for tool execution spans.
type ToolSpanOptions struct {
	Tool   string
	Args   map[string]interface{} // Always included (agent-controlled)
	Result string                 // Only included if debug=true
}

// StartToolSpan starts a span for a tool execution.
func (t *Tracer) StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "tool."+toolName, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("tool.name", toolName))
	return ctx, span
}

// EndToolSpan ends a tool span with attributes.
func (t *Tracer) EndToolSpan(span trace.Span, opts ToolSpanOptions, err error) {
	// Args are agent-controlled, not user data.
	for k, v := range opts.Args {
		span.SetAttributes(attribute.String("tool.arg."+k, truncateAny(v, 500)))
	}

	if t.debug && opts.Result != "" {
		span.SetAttributes(attribute.String("tool.result", truncate(opts.Result, 4000)))
	}

	end(span, err)
}

// --- Helpers ---

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func truncateAny(v interface{}, maxLen int) string {
	if s, ok := v.(string); ok {
		return truncate(s, maxLen)
	}
	return truncate(fmt.Sprint(v), maxLen)
}
