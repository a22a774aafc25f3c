package padding

import (
	"math"
	"time"
)

// Timer is a resettable timer fired at the earliest padding wakeup.
type Timer struct {
	t        *time.Timer
	deadline time.Time
}

// NewTimer returns a timer that is not set.
func NewTimer() *Timer {
	t := time.NewTimer(time.Duration(math.MaxInt64))
	t.Stop()
	return &Timer{t: t}
}

// Chan fires once the deadline passes.
func (t *Timer) Chan() <-chan time.Time {
	return t.t.C
}

// Reset moves the deadline. A zero deadline disarms the timer.
func (t *Timer) Reset(deadline time.Time) {
	if deadline.Equal(t.deadline) {
		return
	}
	t.deadline = deadline
	if deadline.IsZero() {
		t.t.Stop()
		return
	}
	t.t.Reset(time.Until(deadline))
}

// SetRead records that the last expiry was consumed, so the same deadline
// can be armed again.
func (t *Timer) SetRead() {
	t.deadline = time.Time{}
}

// Deadline returns the armed deadline.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Stop disarms the timer.
func (t *Timer) Stop() {
	t.deadline = time.Time{}
	t.t.Stop()
}
