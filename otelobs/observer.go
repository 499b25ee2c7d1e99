// Package otelobs provides OpenTelemetry integration for tool invocations.
package otelobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugin"
)

// State keys used to carry span context between hook callbacks.
const (
	stateKeySpan  = "otelobs.span"
	stateKeyStart = "otelobs.start"
)

// Observer records tool invocation signals into OpenTelemetry. It attaches
// to an application as a plugin: a span is opened before each tool call and
// closed with the call's outcome, while counters and a latency histogram
// capture aggregate behaviour.
type Observer struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

// New creates an observer bound to the provided meter and tracer.
func New(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	invocations, err := meter.Int64Counter(
		"appskit.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"appskit.tool.failures",
		metric.WithDescription("Number of failed tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"appskit.tool.latency",
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

// Plugin packages the observer's hooks for registration with an application.
func (o *Observer) Plugin() plugin.Plugin {
	return plugin.Plugin{
		Name:           "otel-observer",
		BeforeToolCall: o.beforeToolCall,
		AfterToolCall:  o.afterToolCall,
		OnToolError:    o.onToolError,
	}
}

func (o *Observer) beforeToolCall(ctx context.Context, ictx *invoke.Context) error {
	ictx.Set(stateKeyStart, time.Now())
	if o.tracer != nil {
		_, span := o.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
			attribute.String("tool_name", ictx.ToolName),
			attribute.String("invocation_id", ictx.ID),
			attribute.String("transport", ictx.Meta.Transport),
		))
		ictx.Set(stateKeySpan, span)
	}
	return nil
}

func (o *Observer) afterToolCall(ctx context.Context, ictx *invoke.Context, output map[string]any) error {
	o.record(ctx, ictx, true, "")
	if span, ok := o.span(ictx); ok {
		span.SetStatus(codes.Ok, "")
		span.End()
	}
	return nil
}

func (o *Observer) onToolError(ctx context.Context, ictx *invoke.Context, err error) error {
	o.record(ctx, ictx, false, string(invoke.KindOf(err)))
	if span, ok := o.span(ictx); ok {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		span.End()
	}
	return nil
}

func (o *Observer) record(ctx context.Context, ictx *invoke.Context, success bool, kind string) {
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", ictx.ToolName),
		attribute.Bool("success", success),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String("error_kind", kind))
	}

	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	if !success {
		o.failures.Add(ctx, 1, options)
	}
	if start, ok := ictx.Get(stateKeyStart); ok {
		if t0, ok := start.(time.Time); ok {
			o.latency.Record(ctx, time.Since(t0).Seconds(), options)
		}
	}
}

func (o *Observer) span(ictx *invoke.Context) (trace.Span, bool) {
	v, ok := ictx.Get(stateKeySpan)
	if !ok {
		return nil, false
	}
	span, ok := v.(trace.Span)
	return span, ok
}
