package dispatch

import (
	"context"
	"sync"
	"time"
)

// Limiter is a sliding-window admission gate: at most cap sends are admitted
// within any trailing window, across all callers combined.
//
// It is deliberately not a token bucket. A bucket with burst=cap can admit up
// to twice the cap inside one trailing window at a refill boundary; providers
// that enforce "N per minute" as a hard ceiling reject that.
//
// Acquire reserves the earliest admissible slot under the lock and then
// sleeps until that slot's time. Reservation order equals lock acquisition
// order, so concurrent callers are served FIFO and none is starved. A caller
// cancelled mid-wait forfeits its reserved slot; the slot still counts
// against the window, which keeps the cap conservative under churn.
type Limiter struct {
	mu     sync.Mutex
	cap    int
	window time.Duration

	// admits holds the reserved admission times of the most recent cap
	// grants, oldest first.
	admits []time.Time

	now func() time.Time
}

func NewLimiter(cap int, window time.Duration) *Limiter {
	if cap < 1 {
		cap = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{cap: cap, window: window, now: time.Now}
}

// Apply retunes the cap and window. In-progress waiters keep the admission
// times they already reserved; only future reservations see the new policy.
func (l *Limiter) Apply(cap int, window time.Duration) {
	if cap < 1 || window <= 0 {
		return
	}
	l.mu.Lock()
	l.cap = cap
	l.window = window
	if len(l.admits) > cap {
		l.admits = append([]time.Time(nil), l.admits[len(l.admits)-cap:]...)
	}
	l.mu.Unlock()
}

// Acquire blocks until admitting one more send keeps the trailing-window
// count within the cap, or until ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	var at time.Time
	if len(l.admits) < l.cap {
		at = now
	} else {
		at = l.admits[len(l.admits)-l.cap].Add(l.window)
		if at.Before(now) {
			at = now
		}
	}
	l.admits = append(l.admits, at)
	if len(l.admits) > l.cap {
		l.admits = append(l.admits[:0], l.admits[len(l.admits)-l.cap:]...)
	}
	l.mu.Unlock()

	wait := at.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
