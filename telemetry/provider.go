package telemetry

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/vinayprograms/blogcrew/errors"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

const defaultServiceName = "blogcrew"

// ProviderConfig describes where run traces are exported.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is host:port of the OTLP collector. A scheme prefix is
	// ignored.
	Endpoint string

	// Protocol is ProtocolGRPC (default) or ProtocolHTTP.
	Protocol string
	Insecure bool

	// Debug records prompts and tool output on spans.
	Debug bool

	// Headers are sent with every export, e.g. collector auth tokens.
	Headers map[string]string

	// BatchTimeout caps how long spans wait before a batch is sent.
	BatchTimeout time.Duration

	// ExportTimeout bounds one export request.
	ExportTimeout time.Duration
}

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.Protocol == "" {
		c.Protocol = ProtocolGRPC
	}
	c.Endpoint = strings.TrimPrefix(strings.TrimPrefix(c.Endpoint, "http://"), "https://")
	return c
}

// Validate checks the exporter can be built from c.
func (c ProviderConfig) Validate() error {
	c = c.withDefaults()
	if c.Endpoint == "" {
		return errors.Config("telemetry is enabled but not configured", "telemetry.endpoint")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return errors.Newf(errors.ErrCodeConfig, "unknown telemetry protocol: %s (use 'grpc' or 'http')", c.Protocol)
	}
	if c.BatchTimeout < 0 || c.ExportTimeout < 0 {
		return errors.Config("telemetry timeouts must not be negative")
	}
	return nil
}

// InitProvider builds an OTLP tracer provider, installs it globally and
// points the global Tracer at it. The caller must shut the provider down.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*sdktrace.TracerProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, errors.Wrap(err, "creating telemetry resource")
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "creating telemetry exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOptions(cfg)...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	SetGlobalTracer(NewTracerFrom(tp, cfg.ServiceName, cfg.Debug))
	return tp, nil
}

func newExporter(ctx context.Context, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func batchOptions(cfg ProviderConfig) []sdktrace.BatchSpanProcessorOption {
	if cfg.BatchTimeout <= 0 {
		return nil
	}
	return []sdktrace.BatchSpanProcessorOption{sdktrace.WithBatchTimeout(cfg.BatchTimeout)}
}

// Setup initializes tracing when enabled and returns the hook that flushes
// and stops the exporter at exit. When disabled the global tracer stays a
// no-op and the hook does nothing.
func Setup(ctx context.Context, enabled bool, cfg ProviderConfig) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := InitProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := tp.ForceFlush(ctx); err != nil {
			_ = tp.Shutdown(ctx)
			return errors.Wrap(err, "flushing spans")
		}
		return tp.Shutdown(ctx)
	}, nil
}
