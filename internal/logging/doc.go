// Package logging builds the structured loggers used by taskstack binaries.
//
// Loggers are zap loggers with a custom Trace level below Debug, a JSON or
// console encoder on stdout, an optional OpenTelemetry log bridge, and
// level-aware sampling that never drops errors. The control loop logs at
// high rates, so Trace and Debug are sampled aggressively by default.
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithControllerID(ctx, mgr.ID())
//	logger.Info(ctx, "controller started")
//
// Packages that take a *zap.Logger receive logger.Underlying().
//
// # Context fields
//
// ContextFields attaches the active span's trace and span ids, the
// controller id, the control cycle number and the HTTP request id when they
// are present in the context.
//
// # Testing
//
// NewTestLogger records every entry for assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "task set")
//	tl.AssertLogged(t, zapcore.InfoLevel, "task set")
package logging
