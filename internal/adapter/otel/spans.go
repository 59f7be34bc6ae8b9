package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "supportiq"

// StartCycleSpan starts a span for a full recommendation generation cycle.
func StartCycleSpan(ctx context.Context, cycleID, customerID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "generation_cycle",
		trace.WithAttributes(
			attribute.String("cycle.id", cycleID),
			attribute.String("customer.id", customerID),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage within a cycle.
func StartStageSpan(ctx context.Context, stage, customerID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage."+stage,
		trace.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("customer.id", customerID),
		),
	)
}

// StartSourceSpan starts a span for an external data source call.
func StartSourceSpan(ctx context.Context, source, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "source."+source,
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.String("operation", operation),
		),
	)
}
