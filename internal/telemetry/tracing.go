package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of dispatch spans.
const TracerName = "toolshim-mcp/dispatch"

var (
	providerMu sync.Mutex
	provider   *sdktrace.TracerProvider
)

// InitTracing installs a process-wide tracer provider. Without an exporter
// spans are sampled and ended in-process only, which keeps trace ids
// available for log correlation. Calling it again is a no-op.
func InitTracing(serviceName string, opts ...sdktrace.TracerProviderOption) {
	providerMu.Lock()
	defer providerMu.Unlock()
	if provider != nil {
		return
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
	}, opts...)

	provider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
}

// ShutdownTracing flushes and shuts down the provider installed by InitTracing.
func ShutdownTracing(ctx context.Context) error {
	providerMu.Lock()
	tp := provider
	provider = nil
	providerMu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a dispatch span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// TraceID returns the trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
