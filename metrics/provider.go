// Package metrics implements bantai's observability extension: a
// Prometheus-backed evaluation/rule counter and histogram pair, plus an
// OpenTelemetry tracing span wrapping each evaluatePolicy call. It is
// purely observational, per spec.md's carve-out for the engine's own
// internals — nothing here can affect a PolicyResult. Grounded on the
// teacher's internal/adapter/inbound/http.Metrics (Prometheus counter/
// histogram shape) and the pack's observability.Provider pattern
// (OpenTelemetry provider wiring), narrowed to the stdout exporters for
// the cmd/bantai CLI demo instead of an OTLP collector.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Providers bundles the OpenTelemetry SDK providers NewStdoutProviders
// builds, so callers can shut them down cleanly on exit.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// Shutdown flushes and closes both providers. Safe to call even if one
// field is nil.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("metrics: shutdown tracer provider: %w", err)
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("metrics: shutdown meter provider: %w", err)
		}
	}
	return nil
}

// NewStdoutProviders builds a TracerProvider and MeterProvider that
// write every span and metric collection to standard output, for the
// cmd/bantai demo.
// A production embedder would swap these exporters for an OTLP one
// without touching Recorder.
func NewStdoutProviders() (*Providers, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("metrics: new trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: new metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))

	return &Providers{TracerProvider: tp, MeterProvider: mp}, nil
}

// Tracer returns a tracer scoped to the bantai engine from tp, or the
// no-op tracer if tp is nil.
func Tracer(tp *sdktrace.TracerProvider) trace.Tracer {
	if tp == nil {
		return noop.NewTracerProvider().Tracer("bantai")
	}
	return tp.Tracer("bantai")
}
