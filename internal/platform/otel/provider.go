// Package otel configures OpenTelemetry tracing for service commands.
package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config controls trace export. Tracing stays off until Endpoint is set.
type Config struct {
	Endpoint string            `env:"AUTHGATE_OTEL_ENDPOINT"`
	Enabled  bool              `env:"AUTHGATE_OTEL_ENABLED"      envDefault:"true"`
	Ratio    float64           `env:"AUTHGATE_OTEL_SAMPLE_RATIO" envDefault:"1"`
	Headers  map[string]string `env:"AUTHGATE_OTEL_HEADERS"`
	// Environment is recorded as deployment.environment on every span.
	Environment string `env:"AUTHGATE_ENVIRONMENT" envDefault:"development"`
}

// Sampler returns the sampler for the configured ratio.
func (c Config) Sampler() sdktrace.Sampler {
	switch {
	case c.Ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case c.Ratio < 1:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.Ratio))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Setup registers a global tracer provider exporting to cfg.Endpoint and
// returns its shutdown function. Without an endpoint the shutdown is a no-op
// and the global provider is left untouched.
func Setup(ctx context.Context, serviceName string, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if !cfg.Enabled || endpoint == "" {
		return noop, nil
	}

	options := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	if len(cfg.Headers) > 0 {
		options = append(options, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, options...)
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.Sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
