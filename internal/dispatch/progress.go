package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wablast/internal/eventbus"
)

// Event types published on the bus. JobEvent rides the per-job types,
// Snapshot rides EventProgress.
const (
	EventProgress  = "dispatch.progress"
	EventSent      = "dispatch.job.sent"
	EventRetry     = "dispatch.job.retry"
	EventExhausted = "dispatch.job.exhausted"
	EventDone      = "dispatch.done"
)

// JobEvent is the bus payload for per-job transitions.
type JobEvent struct {
	BatchID  string `json:"batch_id"`
	Phone    string `json:"phone"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Failure is one entry of the bounded recent-failure log.
type Failure struct {
	Phone    string
	Error    string
	Attempts int
	At       time.Time
}

// Snapshot is a consistent point-in-time view of a run. The five counts
// always sum to Total. Failures is most-recent-first and bounded.
type Snapshot struct {
	BatchID   string
	Total     int
	Pending   int
	Retrying  int
	InFlight  int
	Succeeded int
	Exhausted int
	Failures  []Failure
}

// Done reports whether every job reached a terminal status.
func (s Snapshot) Done() bool { return s.Succeeded+s.Exhausted == s.Total }

// tracker aggregates counts across worker transitions. Critical sections are
// a handful of integer updates, so it never becomes the throughput
// bottleneck next to the rate limiter.
//
// Per-terminal-job events are always published; aggregate progress events go
// through an Allow() gate so a fast stretch of sends can't flood observers.
type tracker struct {
	mu sync.Mutex

	batchID   string
	total     int
	pending   int
	retrying  int
	inflight  int
	succeeded int
	exhausted int

	failures    []Failure // most recent first
	maxFailures int

	bus eventbus.Bus
	pub *rate.Limiter
}

func newTracker(batchID string, total, maxFailures, eventsPerSec int, bus eventbus.Bus) *tracker {
	if maxFailures <= 0 {
		maxFailures = 50
	}
	if eventsPerSec <= 0 {
		eventsPerSec = 10
	}
	return &tracker{
		batchID:     batchID,
		total:       total,
		pending:     total,
		maxFailures: maxFailures,
		bus:         bus,
		pub:         rate.NewLimiter(rate.Limit(eventsPerSec), 1),
	}
}

// jobStarted moves one job into InFlight. wasRetry distinguishes the
// Retrying bucket from first-attempt Pending.
func (t *tracker) jobStarted(wasRetry bool) {
	t.mu.Lock()
	if wasRetry {
		t.retrying--
	} else {
		t.pending--
	}
	t.inflight++
	t.mu.Unlock()
	t.publishProgress()
}

func (t *tracker) jobReleased(wasRetry bool) {
	t.mu.Lock()
	t.inflight--
	if wasRetry {
		t.retrying++
	} else {
		t.pending++
	}
	t.mu.Unlock()
}

func (t *tracker) jobRetry(j *SendJob, err error) {
	t.mu.Lock()
	t.inflight--
	t.retrying++
	t.recordFailureLocked(j, err)
	t.mu.Unlock()

	t.publishJob(EventRetry, j, err)
	t.publishProgress()
}

func (t *tracker) jobSucceeded(j *SendJob) {
	t.mu.Lock()
	t.inflight--
	t.succeeded++
	t.mu.Unlock()

	t.publishJob(EventSent, j, nil)
	t.publishProgress()
}

func (t *tracker) jobExhausted(j *SendJob, err error) {
	t.mu.Lock()
	t.inflight--
	t.exhausted++
	t.recordFailureLocked(j, err)
	t.mu.Unlock()

	t.publishJob(EventExhausted, j, err)
	t.publishProgress()
}

func (t *tracker) recordFailureLocked(j *SendJob, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	f := Failure{Phone: j.Recipient.Phone, Error: msg, Attempts: j.Attempts, At: time.Now()}
	t.failures = append([]Failure{f}, t.failures...)
	if len(t.failures) > t.maxFailures {
		t.failures = t.failures[:t.maxFailures]
	}
}

// snapshot returns a consistent copy.
func (t *tracker) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		BatchID:   t.batchID,
		Total:     t.total,
		Pending:   t.pending,
		Retrying:  t.retrying,
		InFlight:  t.inflight,
		Succeeded: t.succeeded,
		Exhausted: t.exhausted,
		Failures:  append([]Failure(nil), t.failures...),
	}
}

func (t *tracker) publishJob(typ string, j *SendJob, err error) {
	if t.bus == nil {
		return
	}
	ev := JobEvent{BatchID: t.batchID, Phone: j.Recipient.Phone, Attempts: j.Attempts}
	if err != nil {
		ev.Error = err.Error()
	}
	t.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func (t *tracker) publishProgress() {
	if t.bus == nil || !t.pub.Allow() {
		return
	}
	t.bus.Publish(eventbus.Event{Type: EventProgress, Data: t.snapshot()})
}

func (t *tracker) publishDone() {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: EventDone, Data: t.snapshot()})
}
