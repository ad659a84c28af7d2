package logging

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "task set", zap.String("task", "reach"), zap.Uint("priority", 2))
	tl.Trace(ctx, "rows stacked")

	tl.AssertLogged(t, zapcore.InfoLevel, "task set")
	tl.AssertLogged(t, TraceLevel, "rows")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "task set")
	tl.AssertField(t, "task set", "task", "reach")
	tl.AssertField(t, "task set", "priority", uint64(2))

	if got := tl.FilterMessage("task").Len(); got != 1 {
		t.Fatalf("FilterMessage(task) = %d entries, want 1", got)
	}

	tl.Reset()
	if len(tl.All()) != 0 {
		t.Fatalf("Reset left %d entries", len(tl.All()))
	}
}

func TestTestLogger_TraceCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	tl := NewTestLogger()
	tl.Warn(ctx, "cycle failed")
	tl.AssertTraceCorrelation(t, "cycle failed")
}
