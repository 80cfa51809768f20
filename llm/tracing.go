// Tracing wrapper for LLM providers.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/blogcrew/telemetry"
)

// TracingProvider wraps a Provider with OpenTelemetry tracing.
type TracingProvider struct {
	provider     Provider
	providerName string
	tracer       *telemetry.Tracer
}

// WithTracing wraps a provider with tracing instrumentation. A nil tracer
// means the global one, resolved on each call.
func WithTracing(p Provider, providerName string, tracer *telemetry.Tracer) Provider {
	return &TracingProvider{
		provider:     p,
		providerName: providerName,
		tracer:       tracer,
	}
}

// Chat implements Provider with tracing.
func (tp *TracingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	tracer := tp.tracer
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}

	ctx, span := tracer.StartLLMSpan(ctx, "llm.chat")

	resp, err := tp.provider.Chat(ctx, req)

	opts := telemetry.LLMSpanOptions{Provider: tp.providerName}
	if resp != nil {
		opts.Model = resp.Model
		opts.TokensIn = resp.InputTokens
		opts.TokensOut = resp.OutputTokens
		opts.ToolCalls = len(resp.ToolCalls)
		opts.Response = resp.Content
	}

	// Prompt is only built when it will be recorded.
	if tracer.Debug() {
		var parts []string
		for _, msg := range req.Messages {
			parts = append(parts, fmt.Sprintf("[%s] %s", msg.Role, msg.Content))
		}
		opts.Prompt = strings.Join(parts, "\n")
	}

	tracer.EndLLMSpan(span, opts, err)

	return resp, err
}
