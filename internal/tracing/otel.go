package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the tracer provider built by InitOpenTelemetry.
type Option func(*providerConfig)

type providerConfig struct {
	version     string
	sampleRatio float64
}

// WithVersion sets the service.version resource attribute.
func WithVersion(v string) Option {
	return func(c *providerConfig) { c.version = v }
}

// WithSampleRatio sets the fraction of root traces that are sampled.
func WithSampleRatio(r float64) Option {
	return func(c *providerConfig) { c.sampleRatio = r }
}

var (
	initOnce sync.Once
	initErr  error

	mu       sync.RWMutex
	provider *sdktrace.TracerProvider
)

// InitOpenTelemetry installs the process-wide tracer provider. Only the
// first call has any effect.
func InitOpenTelemetry(serviceName string, opts ...Option) error {
	initOnce.Do(func() {
		cfg := providerConfig{sampleRatio: 1}
		for _, opt := range opts {
			opt(&cfg)
		}

		attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
		if cfg.version != "" {
			attrs = append(attrs, semconv.ServiceVersion(cfg.version))
		}
		res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
		if err != nil {
			initErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.sampleRatio))),
		)

		mu.Lock()
		provider = tp
		mu.Unlock()
		otel.SetTracerProvider(tp)
	})
	return initErr
}

// ShutdownOpenTelemetry flushes pending spans and stops the provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	mu.RLock()
	tp := provider
	mu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span named spanName. The chat session id carried by
// ctx is added as an attribute, and the span's trace id is stored in the
// returned context when ctx has none yet.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, attribute.String("chat.session_id", id))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if sc := span.SpanContext(); sc.IsValid() && GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, sc.TraceID().String())
	}
	return ctx, span
}

// FailSpan marks span as failed with err and returns err.
func FailSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
