// Package telemetry sets up OpenTelemetry tracing and metrics export for
// taskstack.
//
// The task manager records a span per control cycle and counters and
// histograms for cycles, failures and task operations through the global
// providers this package installs. Export goes to an OTLP collector over
// gRPC (default) or HTTP/protobuf.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	metrics, err := manager.NewMetrics(tel.Meter("taskstack/manager"))
//
// # Graceful degradation
//
// Exporter construction failures do not fail New. The instance is marked
// degraded, keeps the no-op global providers, and Health reports the reason.
//
// # Testing
//
// NewTestTelemetry records spans in memory and collects metrics on demand
// through a manual reader.
package telemetry
