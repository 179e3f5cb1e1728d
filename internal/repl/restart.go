package repl

import (
	"math"
	"time"
)

// restartPolicy bounds automatic reconnects after crashes. The counter resets
// once a session has lived longer than the reset window.
type restartPolicy struct {
	maxRestarts int
	initial     time.Duration
	max         time.Duration
	multiplier  float64
	resetWindow time.Duration

	count     int
	lastStart time.Time
}

// started records a new session start.
func (p *restartPolicy) started(now time.Time) {
	p.lastStart = now
}

// reset clears the crash counter, e.g. after an explicit restart.
func (p *restartPolicy) reset() {
	p.count = 0
}

// next registers a crash and returns how long to wait before reconnecting.
// ok is false once the restart budget is spent.
func (p *restartPolicy) next(now time.Time) (delay time.Duration, ok bool) {
	if !p.lastStart.IsZero() && now.Sub(p.lastStart) > p.resetWindow {
		// One long-lived session earns one fresh budget; crashes after it
		// count until the next successful start.
		p.count = 0
		p.lastStart = time.Time{}
	}
	p.count++
	if p.count > p.maxRestarts {
		return 0, false
	}
	return CalculateBackoff(p.count, p.initial, p.max, p.multiplier), true
}

// CalculateBackoff returns the delay before restart attempt number attempt.
// Attempts 0 and 1 wait initial; later attempts grow by multiplier up to max.
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
