package tcpsender

import "time"

// RetransmissionTimer tracks elapsed time against a current RTO. It
// holds no wall-clock reference of its own: the driver loop supplies
// elapsed-time deltas via Elapse, same as every other clock in this
// stack.
type RetransmissionTimer struct {
	rto     time.Duration
	elapsed time.Duration
	active  bool
}

// NewRetransmissionTimer returns an inactive timer with the given
// initial RTO.
func NewRetransmissionTimer(initialRTO time.Duration) *RetransmissionTimer {
	return &RetransmissionTimer{rto: initialRTO}
}

// Activate starts (or restarts) the timer from zero elapsed time.
func (t *RetransmissionTimer) Activate() {
	t.active = true
	t.elapsed = 0
}

// Deactivate stops the timer; Elapse becomes a no-op until reactivated.
func (t *RetransmissionTimer) Deactivate() {
	t.active = false
}

// ResetRTO resets both the RTO and elapsed time. The active flag is left
// unchanged; the caller sets it next via Activate/Deactivate.
func (t *RetransmissionTimer) ResetRTO(initialRTO time.Duration) {
	t.rto = initialRTO
	t.elapsed = 0
}

// Backoff doubles the current RTO, per exponential backoff.
func (t *RetransmissionTimer) Backoff() {
	t.rto *= 2
}

// Elapse advances elapsed time by d, only while the timer is active.
func (t *RetransmissionTimer) Elapse(d time.Duration) {
	if t.active {
		t.elapsed += d
	}
}

// IsExpired reports whether the timer is active and has reached its RTO.
func (t *RetransmissionTimer) IsExpired() bool {
	return t.active && t.elapsed >= t.rto
}

// IsActive reports whether the timer is currently running.
func (t *RetransmissionTimer) IsActive() bool {
	return t.active
}

// ResetElapsed zeroes elapsed time without touching the active flag.
func (t *RetransmissionTimer) ResetElapsed() {
	t.elapsed = 0
}
