package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration read from strings such as "250ms".
type Duration time.Duration

// UnmarshalText parses a non-negative Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret is the NATS token. It prints redacted; only Value exposes it.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the token.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a token was configured.
func (s Secret) IsSet() bool { return s != "" }
