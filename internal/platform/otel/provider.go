// Package otel configures OpenTelemetry tracing for service processes.
package otel

import (
	"context"
	"strings"

	"github.com/ifeanyidike/cenphi-intelligence/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type otelEnv struct {
	Enabled     string  `env:"CENPHI_INTELLIGENCE_OTEL_ENABLED"`
	Endpoint    string  `env:"CENPHI_INTELLIGENCE_OTEL_ENDPOINT"`
	SampleRatio float64 `env:"CENPHI_INTELLIGENCE_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when CENPHI_INTELLIGENCE_OTEL_ENDPOINT is empty or
// CENPHI_INTELLIGENCE_OTEL_ENABLED is "false", Setup returns a no-op shutdown
// function and no global provider is registered.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var env otelEnv
	if err := config.ParseEnv(&env); err != nil {
		return noop, err
	}
	if strings.EqualFold(strings.TrimSpace(env.Enabled), "false") {
		return noop, nil
	}
	endpoint := strings.TrimSpace(env.Endpoint)
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(env.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// sampler honours the caller's sampling decision and samples root spans at
// ratio, clamped to [0, 1].
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
