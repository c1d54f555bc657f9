package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of service spans
const TracerName = "github.com/pharmalytics/backend"

// StartServiceSpan starts a span named {service}.{method}.
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "analytics", "products")
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx,
		fmt.Sprintf("%s.%s", service, method),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on the span and marks the span as failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Span attribute keys used by the analytics service
const (
	SpanAttrEndpoint  = attribute.Key("analytics.endpoint")
	SpanAttrMode      = attribute.Key("analytics.mode")
	SpanAttrRole      = attribute.Key("analytics.role")
	SpanAttrCached    = attribute.Key("analytics.cached")
	SpanAttrRowCount  = attribute.Key("analytics.row_count")
	SpanAttrScopeSize = attribute.Key("analytics.scope_size")
)
