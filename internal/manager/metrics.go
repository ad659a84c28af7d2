package manager

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/taskstack/internal/manager"
)

// Metrics provides OpenTelemetry metrics for the manager package.
type Metrics struct {
	// Counters
	cycleTotal       metric.Int64Counter
	cycleFailedTotal metric.Int64Counter
	taskOpTotal      metric.Int64Counter

	// Gauges (using UpDownCounter for gauge semantics)
	taskCount      metric.Int64UpDownCounter
	primitiveCount metric.Int64UpDownCounter

	// Histograms
	cycleDuration metric.Float64Histogram
	cycleRows     metric.Int64Histogram

	// initialized tracks if metrics were successfully initialized
	initialized bool
}

// NewMetrics creates a new Metrics instance with the provided meter.
// If meter is nil, uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.cycleTotal, err = meter.Int64Counter(
		"manager.cycle.total",
		metric.WithDescription("Total number of successful control cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	m.cycleFailedTotal, err = meter.Int64Counter(
		"manager.cycle.failed.total",
		metric.WithDescription("Total number of aborted control cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	m.taskOpTotal, err = meter.Int64Counter(
		"manager.task.operations.total",
		metric.WithDescription("Task registry operations by kind and result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.taskCount, err = meter.Int64UpDownCounter(
		"manager.task.count",
		metric.WithDescription("Number of registered tasks"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.primitiveCount, err = meter.Int64UpDownCounter(
		"manager.primitive.count",
		metric.WithDescription("Number of registered geometric primitives"),
		metric.WithUnit("{primitive}"),
	)
	if err != nil {
		return nil, err
	}

	m.cycleDuration, err = meter.Float64Histogram(
		"manager.cycle.duration.seconds",
		metric.WithDescription("Duration of one control cycle in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025),
	)
	if err != nil {
		return nil, err
	}

	m.cycleRows, err = meter.Int64Histogram(
		"manager.cycle.rows",
		metric.WithDescription("Task rows handed to the solver per cycle"),
		metric.WithUnit("{row}"),
		metric.WithExplicitBucketBoundaries(1, 2, 4, 8, 16, 32, 64, 128),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordCycle records a successful control cycle.
func (m *Metrics) RecordCycle(ctx context.Context, levels, rows int, duration time.Duration) {
	if m == nil || !m.initialized {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("levels", levels))
	m.cycleTotal.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, duration.Seconds(), attrs)
	m.cycleRows.Record(ctx, int64(rows), attrs)
}

// RecordCycleFailed records an aborted control cycle with its status code.
func (m *Metrics) RecordCycleFailed(ctx context.Context, status int, duration time.Duration) {
	if m == nil || !m.initialized {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", strconv.Itoa(status)))
	m.cycleFailedTotal.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordTaskOp records a task registry operation.
func (m *Metrics) RecordTaskOp(ctx context.Context, op string, ok bool) {
	if m == nil || !m.initialized {
		return
	}
	m.taskOpTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("ok", ok),
	))
}

// RecordTasks adjusts the registered task gauge by delta.
func (m *Metrics) RecordTasks(ctx context.Context, delta int) {
	if m == nil || !m.initialized || delta == 0 {
		return
	}
	m.taskCount.Add(ctx, int64(delta))
}

// RecordPrimitives adjusts the registered primitive gauge by delta.
func (m *Metrics) RecordPrimitives(ctx context.Context, delta int) {
	if m == nil || !m.initialized || delta == 0 {
		return
	}
	m.primitiveCount.Add(ctx, int64(delta))
}

// Tracer returns a tracer for the manager package.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// SpanAttributes returns common span attributes for a control cycle.
func SpanAttributes(controllerID string, cycle uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("manager.controller_id", controllerID),
		attribute.Int64("manager.cycle", int64(cycle)),
	}
}

// StartSpan starts a new span with controller context.
func StartSpan(ctx context.Context, name, controllerID string, cycle uint64, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	attrs := SpanAttributes(controllerID, cycle)
	allOpts := append([]trace.SpanStartOption{trace.WithAttributes(attrs...)}, opts...)
	return Tracer().Start(ctx, name, allOpts...)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attrs...))
	}
}

// SetSpanStatus sets the status on the current span.
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}
