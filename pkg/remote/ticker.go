package remote

import "time"

// Ticker tells when a periodic task is due, on the monotonic clock.
// It's due on first use.
type Ticker struct {
	Interval time.Duration

	last   time.Time
	marked bool
}

// Due tells if Interval elapsed since the last Mark.
func (t *Ticker) Due(now time.Time) bool {
	return !t.marked || now.Sub(t.last) >= t.Interval
}

// Mark records the task ran at now.
func (t *Ticker) Mark(now time.Time) {
	t.last, t.marked = now, true
}
