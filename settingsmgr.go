package h2

import "time"

// SettingsManager tracks the single in-flight local SETTINGS frame a
// session may have outstanding at a time. Grounded on
// original_source/lib/settings_manager.cpp: a Begin while one is already
// pending returns BUSY synchronously rather than queuing, and a pending
// exchange that isn't ACKed within the timeout (5s in the original) is a
// SETTINGS_TIMEOUT connection error.
type SettingsManager struct {
	timeout time.Duration
	pending bool
	timer   *time.Timer
}

// NewSettingsManager builds a manager using timeout as the ACK deadline.
// A zero timeout uses the original's 5 second default.
func NewSettingsManager(timeout time.Duration) *SettingsManager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SettingsManager{timeout: timeout}
}

// Pending reports whether a local SETTINGS frame is awaiting its ACK.
func (m *SettingsManager) Pending() bool { return m.pending }

// Begin marks one SETTINGS frame as sent and awaiting ACK. It returns
// ErrBusy if a previous exchange hasn't been acknowledged yet — the
// original's begin() returns BUSY rather than queue a second exchange.
func (m *SettingsManager) Begin() error {
	if m.pending {
		return ErrBusy
	}
	m.pending = true
	m.timer = time.NewTimer(m.timeout)
	return nil
}

// Deadline returns the channel that fires if the pending exchange isn't
// ACKed in time. It returns nil if nothing is pending, which a select
// treats as a case that never fires. Session does not select on it: its
// handshake bounds the exchange with a read deadline on the connection.
func (m *SettingsManager) Deadline() <-chan time.Time {
	if m.timer == nil {
		return nil
	}
	return m.timer.C
}

// Ack clears the pending exchange once the peer's ACK arrives.
func (m *SettingsManager) Ack() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.pending = false
	m.timer = nil
}

// Cancel stops any running deadline timer without treating it as acked,
// used when the session is tearing down.
func (m *SettingsManager) Cancel() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.pending = false
	m.timer = nil
}
