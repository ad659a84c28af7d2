package logging

import (
	"fmt"
	"sort"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// instrumentationName is the OpenTelemetry scope of bridged log records.
const instrumentationName = "github.com/fyrsmithlabs/taskstack"

// newCore creates a core writing to out and/or the OTEL provider, wrapped
// with sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider, out zapcore.WriteSyncer) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Stdout {
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), out, cfg.ZapLevel()))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		bridged := otelzap.NewCore(instrumentationName,
			otelzap.WithLoggerProvider(otelProvider),
		)
		cores = append(cores, &levelFilterCore{Core: bridged, allow: atLeast(cfg.ZapLevel())})
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}
	return newSampledCore(core, cfg.Sampling), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = encodeLevel

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(LevelName(l))
}

// newSampledCore samples each configured level independently. Levels
// without a sampling entry, and errors, always pass through.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	rates := make(map[zapcore.Level]LevelSamplingConfig, len(cfg.Levels))
	for name, lc := range cfg.Levels {
		lvl, err := LevelFromString(name)
		if err != nil || lvl >= zapcore.ErrorLevel {
			continue
		}
		rates[lvl] = lc
	}
	if len(rates) == 0 {
		return core
	}

	cores := []zapcore.Core{&levelFilterCore{
		Core:  core,
		allow: func(l zapcore.Level) bool { _, sampled := rates[l]; return !sampled },
	}}

	levels := make([]zapcore.Level, 0, len(rates))
	for lvl := range rates {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	for _, lvl := range levels {
		lc := rates[lvl]
		only := &levelFilterCore{Core: core, allow: exactly(lvl)}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick, lc.Initial, lc.Thereafter))
	}
	return zapcore.NewTee(cores...)
}

func atLeast(min zapcore.Level) func(zapcore.Level) bool {
	return func(l zapcore.Level) bool { return l >= min }
}

func exactly(want zapcore.Level) func(zapcore.Level) bool {
	return func(l zapcore.Level) bool { return l == want }
}

// levelFilterCore passes only the levels allow accepts.
type levelFilterCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.allow(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With creates a child core that preserves level filtering.
func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:  c.Core.With(fields),
		allow: c.allow,
	}
}
