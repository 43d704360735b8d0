package logger

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Field names shared by every log line that carries them
const (
	CorrelationIDField = "correlation_id"
	CustomerIDField    = "customer_id"
)

type fieldsKey struct{}

// WithFields returns a context whose log lines carry fields in addition to
// any already attached
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	existing, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	return context.WithValue(ctx, fieldsKey{}, append(slices.Clip(existing), fields...))
}

// WithCorrelationID tags the unit of work started by an inbound delivery or a
// domain event
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return WithFields(ctx, zap.String(CorrelationIDField, id))
}

func WithCustomerID(ctx context.Context, id string) context.Context {
	return WithFields(ctx, zap.String(CustomerIDField, id))
}

// Fields returns the attached fields followed by trace_id and span_id of the
// active span, if there is one
func Fields(ctx context.Context) []zap.Field {
	attached, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	fields := slices.Clone(attached)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return fields
}

// For returns base with the context's fields attached
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := Fields(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
