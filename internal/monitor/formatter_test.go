package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected string
	}{
		{"normal", 99.87, "99.9 Hz"},
		{"zero", 0.0, "0.0 Hz"},
		{"large", 1000, "1000.0 Hz"},
		{"very_small", 0.0001, "0.0 Hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRate(tt.rate))
		})
	}
}

func TestFormatNorm(t *testing.T) {
	tests := []struct {
		norm     float64
		expected string
	}{
		{0, "|e|=0"},
		{0.5, "|e|=0.5"},
		{0.000123456, "|e|=0.0001235"},
		{12345.6, "|e|=1.235e+04"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatNorm(tt.norm))
	}
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "0.0%", FormatPercentage(0))
	assert.Equal(t, "12.5%", FormatPercentage(0.125))
	assert.Equal(t, "100.0%", FormatPercentage(1))
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		name     string
		n        uint64
		expected string
	}{
		{"zero", 0, "0"},
		{"small", 999, "999"},
		{"thousands", 1500, "1.5k"},
		{"millions", 2_340_000, "2.3M"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatCount(tt.n))
		})
	}
}
