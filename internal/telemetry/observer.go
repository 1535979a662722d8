package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
)

// Observer records tool calls as spans and metrics.
type Observer struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewObserver creates an observer bound to the provided meter and tracer.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	invocations, err := meter.Int64Counter(
		"qrmax.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"qrmax.tool.failures",
		metric.WithDescription("Number of failed tool invocations by error kind"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"qrmax.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:      tracer,
		invocations: invocations,
		failures:    failures,
		latency:     latency,
	}, nil
}

// StartTool opens a span for one call of the named tool. The returned
// function must be called exactly once with the call's error.
// A nil Observer returns ctx unchanged and a no-op finish.
func (o *Observer) StartTool(ctx context.Context, name string) (context.Context, func(error)) {
	if o == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "tool "+name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("tool_name", name)),
	)

	return ctx, func(err error) {
		defer span.End()

		attrs := []attribute.KeyValue{
			attribute.String("tool_name", name),
			attribute.Bool("success", err == nil),
		}
		o.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
		o.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))

		if err == nil {
			span.SetStatus(codes.Ok, "")
			return
		}

		kind := ErrorKind(err)
		o.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool_name", name),
			attribute.String("error_kind", kind),
		))
		span.SetAttributes(attribute.String("error_kind", kind))
		// The public message only; causes can carry URLs and host names.
		span.SetStatus(codes.Error, err.Error())
	}
}

// ErrorKind labels err for metrics: the admission kind when there is one,
// "other" otherwise.
func ErrorKind(err error) string {
	if kind := admission.KindOf(err); kind != "" {
		return string(kind)
	}
	return "other"
}
