package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/ironsheep/qr-tools-mcp"

// Options configures Setup.
type Options struct {
	// OTLPEndpoint is the OTLP/HTTP collector URL, e.g.
	// "http://localhost:4318". Empty disables telemetry.
	OTLPEndpoint string
	ServiceName  string
	Version      string
}

// Providers holds the tracer and meter handed to the Observer.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	shutdown []func(context.Context) error
}

// Shutdown flushes and stops the SDK providers, if any were started.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup builds the telemetry providers. Without an endpoint it returns no-op
// providers and no network activity happens.
func Setup(ctx context.Context, opts Options) (*Providers, error) {
	if opts.OTLPEndpoint == "" {
		return &Providers{
			Tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
			Meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	// Metrics stay in-process; only traces are exported.
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	return &Providers{
		Tracer:   tp.Tracer(instrumentationName),
		Meter:    mp.Meter(instrumentationName),
		shutdown: []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}
