package dispatch

import (
	"context"
	"sync"
	"time"
)

// queue is the ordered backlog of one batch. It owns every status transition,
// which makes dequeue atomic with the Pending -> InFlight flip: no two
// workers can hold the same job.
//
// Eligibility: a Pending job whose eligibleAt has passed, earliest load order
// first. Jobs re-queued with backoff become eligible again when their delay
// elapses; Next sleeps until the soonest such time when nothing is ready.
type queue struct {
	mu sync.Mutex

	jobs     []*SendJob // load order; terminal jobs stay in place
	pending  int
	inflight int
	stopped  bool

	// wake is closed and replaced whenever eligibility may have changed.
	wake chan struct{}

	now func() time.Time
}

func newQueue(jobs []*SendJob) *queue {
	return &queue{
		jobs:    jobs,
		pending: len(jobs),
		wake:    make(chan struct{}),
		now:     time.Now,
	}
}

func (q *queue) notifyLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// Next blocks until a job is eligible and returns it InFlight with its
// attempt counted. It returns errDrained when every job is terminal,
// errStopped after Stop, or ctx.Err() on cancellation.
func (q *queue) Next(ctx context.Context) (*SendJob, error) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return nil, errStopped
		}
		if q.pending == 0 && q.inflight == 0 {
			q.mu.Unlock()
			return nil, errDrained
		}

		now := q.now()
		var soonest time.Time
		for _, j := range q.jobs {
			if j.Status != StatusPending {
				continue
			}
			if !j.eligibleAt.After(now) {
				j.Status = StatusInFlight
				j.Attempts++
				if j.startedAt.IsZero() {
					j.startedAt = now
				}
				q.pending--
				q.inflight++
				q.mu.Unlock()
				return j, nil
			}
			if soonest.IsZero() || j.eligibleAt.Before(soonest) {
				soonest = j.eligibleAt
			}
		}
		wake := q.wake
		q.mu.Unlock()

		var timerC <-chan time.Time
		var timer *time.Timer
		if !soonest.IsZero() {
			timer = time.NewTimer(soonest.Sub(now))
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}
	}
}

// Requeue returns an InFlight job to Pending with a future eligibility time
// after a transient failure.
func (q *queue) Requeue(j *SendJob, lastErr error, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.Status != StatusInFlight {
		return
	}
	j.Status = StatusPending
	j.LastErr = lastErr
	j.eligibleAt = at
	q.inflight--
	q.pending++
	q.notifyLocked()
}

// Release undoes a dequeue whose attempt never reached the provider (run
// cancelled while waiting at the rate gate). The job goes back to Pending
// with the attempt uncounted so a resume replays it cleanly.
func (q *queue) Release(j *SendJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.Status != StatusInFlight {
		return
	}
	j.Status = StatusPending
	j.Attempts--
	q.inflight--
	q.pending++
	q.notifyLocked()
}

// Finalize moves an InFlight job to a terminal status and reports whether
// the transition happened. Terminal jobs never change again.
func (q *queue) Finalize(j *SendJob, st Status, lastErr error) bool {
	if st != StatusSucceeded && st != StatusExhausted {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.Status != StatusInFlight {
		return false
	}
	j.Status = st
	j.LastErr = lastErr
	j.finishedAt = q.now()
	q.inflight--
	// Wake waiters: this may have been the last live job.
	q.notifyLocked()
	return true
}

// Stop makes Next return errStopped. Jobs already InFlight are unaffected;
// Pending jobs stay Pending.
func (q *queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.notifyLocked()
}

func (q *queue) counts() (pending, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending, q.inflight
}
