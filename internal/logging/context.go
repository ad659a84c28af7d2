package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type controllerCtxKey struct{}
type cycleCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := ControllerIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("controller.id", id))
	}
	if cycle, ok := CycleFromContext(ctx); ok {
		fields = append(fields, zap.Uint64("cycle", cycle))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}

	return fields
}

// WithControllerID adds the controller instance id to ctx.
func WithControllerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, controllerCtxKey{}, id)
}

// ControllerIDFromContext extracts the controller instance id.
func ControllerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(controllerCtxKey{}).(string)
	return id
}

// WithCycle adds the control cycle number to ctx.
func WithCycle(ctx context.Context, cycle uint64) context.Context {
	return context.WithValue(ctx, cycleCtxKey{}, cycle)
}

// CycleFromContext extracts the control cycle number.
func CycleFromContext(ctx context.Context) (uint64, bool) {
	cycle, ok := ctx.Value(cycleCtxKey{}).(uint64)
	return cycle, ok
}

// WithRequestID adds an HTTP request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext extracts the HTTP request id.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
