package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      string            `koanf:"level"`
	Format     string            `koanf:"format"`
	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     CallerConfig      `koanf:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`
}

// SamplingConfig controls log volume reduction. Levels is keyed by level
// name; levels without an entry are not sampled.
type SamplingConfig struct {
	Enabled bool                           `koanf:"enabled"`
	Tick    time.Duration                  `koanf:"tick"`
	Levels  map[string]LevelSamplingConfig `koanf:"levels"`
}

// LevelSamplingConfig defines sampling rate per level: the first Initial
// entries with the same message in each tick are kept, then every
// Thereafter-th. A zero Thereafter drops the rest of the tick.
type LevelSamplingConfig struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level string `koanf:"level"`
}

// NewDefaultConfig returns config with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: OutputConfig{
			Stdout: true,
			OTEL:   false,
		},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    time.Second,
			Levels:  DefaultLevelSamplingConfig(),
		},
		Caller: CallerConfig{
			Enabled: true,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: "error",
		},
		Fields: map[string]string{
			"service": "taskstack",
		},
	}
}

// DefaultLevelSamplingConfig returns default sampling config by level.
func DefaultLevelSamplingConfig() map[string]LevelSamplingConfig {
	return map[string]LevelSamplingConfig{
		"trace": {Initial: 1, Thereafter: 0},
		"debug": {Initial: 10, Thereafter: 100},
		"info":  {Initial: 100, Thereafter: 10},
		"warn":  {Initial: 100, Thereafter: 100},
		// Error+ never sampled
	}
}

// ZapLevel returns the configured minimum level.
func (c *Config) ZapLevel() zapcore.Level {
	l, err := LevelFromString(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if _, err := LevelFromString(c.Level); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
		}
		for name, lc := range c.Sampling.Levels {
			lvl, err := LevelFromString(name)
			if err != nil {
				return fmt.Errorf("sampling level %q: %w", name, err)
			}
			if lvl >= zapcore.ErrorLevel {
				return fmt.Errorf("sampling level %q: errors are never sampled", name)
			}
			if lc.Initial < 0 || lc.Thereafter < 0 {
				return fmt.Errorf("sampling level %q: rates must be >= 0", name)
			}
		}
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}
	if c.Stacktrace.Level != "" {
		if _, err := LevelFromString(c.Stacktrace.Level); err != nil {
			return fmt.Errorf("invalid stacktrace level %q: %w", c.Stacktrace.Level, err)
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
