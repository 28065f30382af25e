package h2

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()

	if c.SettingsTimeout != 5*time.Second {
		t.Errorf("SettingsTimeout = %v, want 5s", c.SettingsTimeout)
	}
	if c.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", c.PingInterval, DefaultPingInterval)
	}
	if c.MaxMissedPings != 3 {
		t.Errorf("MaxMissedPings = %d, want 3", c.MaxMissedPings)
	}
	if c.HeaderTableSize != defaultHeaderTableSize {
		t.Errorf("HeaderTableSize = %d, want %d", c.HeaderTableSize, defaultHeaderTableSize)
	}
	if c.Logger == nil {
		t.Errorf("Logger should default to a non-nil no-op logger")
	}
}

func TestNewConfigOptionsOverrideDefaults(t *testing.T) {
	customLogger := zap.NewExample()

	c := NewConfig(
		WithRequestTimeout(2*time.Second),
		WithSettingsTimeout(time.Second),
		WithPingInterval(time.Minute),
		WithInitialWindowSize(1<<24),
		WithMaxConcurrentStreams(10),
		WithCompression(true),
		WithLogger(customLogger),
	)

	if c.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %v, want 2s", c.RequestTimeout)
	}
	if c.SettingsTimeout != time.Second {
		t.Errorf("SettingsTimeout = %v, want 1s", c.SettingsTimeout)
	}
	if c.PingInterval != time.Minute {
		t.Errorf("PingInterval = %v, want 1m", c.PingInterval)
	}
	if c.InitialWindowSize != 1<<24 {
		t.Errorf("InitialWindowSize = %d, want %d", c.InitialWindowSize, 1<<24)
	}
	if c.MaxConcurrentStreams != 10 {
		t.Errorf("MaxConcurrentStreams = %d, want 10", c.MaxConcurrentStreams)
	}
	if !c.EnableCompression {
		t.Errorf("EnableCompression should be true")
	}
	if c.Logger != customLogger {
		t.Errorf("Logger should be the one passed to WithLogger")
	}
}
