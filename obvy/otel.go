// Package obvy carries the observability of the pulse oximeter: OpenTelemetry
// tracing and the Prometheus stats served on /metrics.
package obvy

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of every span pulseox starts.
const TracerName = "github.com/cgxeiji/pulseox"

// InitTracing exports spans over OTLP/HTTP. The endpoint is taken from the
// standard OTEL_EXPORTER_OTLP_* environment variables. Call Shutdown on the
// returned provider to flush pending spans.
func InitTracing(ctx context.Context) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, fmt.Errorf("obvy: could not create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// Tracer returns the pulseox tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
