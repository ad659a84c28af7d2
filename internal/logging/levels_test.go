package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{" Trace ", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := LevelFromString(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("LevelFromString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelName(t *testing.T) {
	if got := LevelName(TraceLevel); got != "trace" {
		t.Errorf("LevelName(TraceLevel) = %q", got)
	}
	if got := LevelName(zapcore.WarnLevel); got != "warn" {
		t.Errorf("LevelName(WarnLevel) = %q", got)
	}
}
