package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// memoryMetricExporter keeps every exported batch.
type memoryMetricExporter struct {
	batches []metricdata.ResourceMetrics
}

func (e *memoryMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return cumulative(k)
}

func (e *memoryMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *memoryMetricExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	e.batches = append(e.batches, *rm)
	return nil
}

func (e *memoryMetricExporter) ForceFlush(context.Context) error { return nil }
func (e *memoryMetricExporter) Shutdown(context.Context) error   { return nil }

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()
	res := newResource(cfg, "ctrl-1")

	attrs := map[string]string{}
	for _, attr := range res.Attributes() {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}
	assert.Equal(t, "taskstack", attrs["service.name"])
	assert.Equal(t, cfg.ServiceVersion, attrs["service.version"])
	assert.Equal(t, "ctrl-1", attrs["service.instance.id"])

	random := newResource(cfg, "")
	found := false
	for _, attr := range random.Attributes() {
		if attr.Key == "service.instance.id" {
			found = attr.Value.AsString() != ""
		}
	}
	assert.True(t, found)
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "root:TraceIDRatioBased")
}

func TestNewTracerProvider_WithExporter(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Rate = 1
	exp := tracetest.NewInMemoryExporter()

	tp, err := newTracerProvider(context.Background(), cfg, newResource(cfg, ""), exp)
	require.NoError(t, err)
	_, span := tp.Tracer("test").Start(context.Background(), "manager.cycle")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))
	require.NoError(t, tp.Shutdown(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "manager.cycle", spans[0].Name)
}

func TestNewMeterProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Metrics.Enabled = false
	mp, err := newMeterProvider(context.Background(), cfg, newResource(cfg, ""), nil)
	require.NoError(t, err)
	assert.Nil(t, mp)

	cfg.Metrics.Enabled = true
	exp := &memoryMetricExporter{}
	mp, err = newMeterProvider(context.Background(), cfg, newResource(cfg, ""), exp)
	require.NoError(t, err)
	counter, err := mp.Meter("test").Int64Counter("manager.cycle.total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)
	require.NoError(t, mp.ForceFlush(context.Background()))
	require.NoError(t, mp.Shutdown(context.Background()))
	assert.NotEmpty(t, exp.batches)
}

func TestOTLPExportersConstructLazily(t *testing.T) {
	ctx := context.Background()
	for _, protocol := range []string{"grpc", "http/protobuf"} {
		cfg := NewDefaultConfig()
		cfg.Protocol = protocol

		traceExp, err := newTraceExporter(ctx, cfg)
		require.NoError(t, err, protocol)
		_ = traceExp.Shutdown(ctx)

		metricExp, err := newMetricExporter(ctx, cfg)
		require.NoError(t, err, protocol)
		assert.Equal(t, metricdata.CumulativeTemporality, metricExp.Temporality(sdkmetric.InstrumentKindUpDownCounter))
		_ = metricExp.Shutdown(ctx)
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4317", stripScheme("otel:4317"))
}

var _ trace.SpanExporter = (*tracetest.InMemoryExporter)(nil)
