package manager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Logger wraps zap.Logger with manager-specific structured logging.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new Logger. If logger is nil, uses a no-op logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("manager")}
}

// TaskSet logs a task registration or replacement.
func (l *Logger) TaskSet(ctx context.Context, name string, priority uint, definition, dynamics string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("task", name),
		zap.Uint("priority", priority),
		zap.String("definition", definition),
		zap.String("dynamics", dynamics),
	}
	fields = append(fields, l.traceFields(ctx)...)
	l.logger.Info("task set", fields...)
}

// TaskRejected logs a task that failed construction.
func (l *Logger) TaskRejected(ctx context.Context, name string, err error) {
	if l == nil || l.logger == nil {
		return
	}
	fields := []zap.Field{zap.String("task", name), zap.Error(err)}
	fields = append(fields, l.traceFields(ctx)...)
	l.logger.Warn("task rejected", fields...)
}

// TaskRemoved logs a task removal.
func (l *Logger) TaskRemoved(ctx context.Context, name string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := append([]zap.Field{zap.String("task", name)}, l.traceFields(ctx)...)
	l.logger.Info("task removed", fields...)
}

// PrimitiveSet logs a primitive upsert.
func (l *Logger) PrimitiveSet(ctx context.Context, name, kind, frame string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("primitive", name),
		zap.String("kind", kind),
		zap.String("frame", frame),
	}
	fields = append(fields, l.traceFields(ctx)...)
	l.logger.Debug("primitive set", fields...)
}

// PrimitiveRemoved logs a primitive removal.
func (l *Logger) PrimitiveRemoved(ctx context.Context, name string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := append([]zap.Field{zap.String("primitive", name)}, l.traceFields(ctx)...)
	l.logger.Debug("primitive removed", fields...)
}

// CycleCompleted logs a successful control cycle at debug level.
func (l *Logger) CycleCompleted(ctx context.Context, cycle uint64, levels, rows int, duration time.Duration) {
	if l == nil || l.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.Uint64("cycle", cycle),
		zap.Int("levels", levels),
		zap.Int("rows", rows),
		zap.Duration("duration", duration),
	}
	fields = append(fields, l.traceFields(ctx)...)
	l.logger.Debug("cycle completed", fields...)
}

// CycleFailed logs an aborted control cycle.
func (l *Logger) CycleFailed(ctx context.Context, cycle uint64, status int, err error) {
	if l == nil || l.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.Uint64("cycle", cycle),
		zap.Int("status", status),
		zap.Error(err),
	}
	fields = append(fields, l.traceFields(ctx)...)
	l.logger.Warn("cycle failed", fields...)
}

// Error logs an error with context.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	allFields := l.traceFields(ctx)
	allFields = append(allFields, zap.Error(err))
	allFields = append(allFields, fields...)
	l.logger.Error(msg, allFields...)
}

// traceFields extracts trace context from the context.
func (l *Logger) traceFields(ctx context.Context) []zap.Field {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	sc := span.SpanContext()
	fields := []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
	if sc.IsSampled() {
		fields = append(fields, zap.Bool("trace_sampled", true))
	}
	return fields
}
