// Package telemetry wires up OpenTelemetry tracing for the runner
// pipeline. It is opt-in: unless OTEL_EXPORTER_OTLP_ENDPOINT is set, spans
// are recorded by a no-op tracer and cost nothing.
package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/banksean/toast"

// Shutdown flushes and stops the tracer provider, if one was installed.
type Shutdown func(context.Context) error

// Setup installs a tracer provider as the global default. When
// OTEL_EXPORTER_OTLP_ENDPOINT is unset, tracing is a no-op and Shutdown
// does nothing.
func Setup(ctx context.Context) (Shutdown, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName("toast"),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracer returns the tracer used for the runner pipeline's spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span for a single runner pipeline stage of a task.
func StartSpan(ctx context.Context, stage, task string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, stage, trace.WithAttributes(
		attribute.String("toast.task", task),
	))
}
