package h2

import (
	"testing"
	"time"
)

func TestSettingsManagerBeginBusyAck(t *testing.T) {
	m := NewSettingsManager(50 * time.Millisecond)

	if m.Pending() {
		t.Fatalf("new manager should not be pending")
	}

	if err := m.Begin(); err != nil {
		t.Fatalf("unexpected error on first Begin: %v", err)
	}
	if !m.Pending() {
		t.Fatalf("expected Pending() true after Begin")
	}

	if err := m.Begin(); err != ErrBusy {
		t.Fatalf("second Begin = %v, want ErrBusy", err)
	}

	m.Ack()
	if m.Pending() {
		t.Fatalf("expected Pending() false after Ack")
	}

	// a fresh Begin must succeed now that the previous one was acked.
	if err := m.Begin(); err != nil {
		t.Fatalf("unexpected error on Begin after Ack: %v", err)
	}
	m.Cancel()
}

func TestSettingsManagerDeadlineFires(t *testing.T) {
	m := NewSettingsManager(10 * time.Millisecond)
	if err := m.Begin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-m.Deadline():
	case <-time.After(time.Second):
		t.Fatalf("deadline channel never fired")
	}
}

func TestSettingsManagerDeadlineNilWhenIdle(t *testing.T) {
	m := NewSettingsManager(time.Second)
	if m.Deadline() != nil {
		t.Fatalf("Deadline() should be nil when nothing is pending")
	}
}

func TestSettingsManagerDefaultTimeout(t *testing.T) {
	m := NewSettingsManager(0)
	if m.timeout != 5*time.Second {
		t.Fatalf("zero timeout should default to 5s, got %v", m.timeout)
	}
}
