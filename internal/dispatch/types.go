package dispatch

import (
	"time"

	"wablast/internal/contact"
	"wablast/internal/transport"
)

// Status is a SendJob's position in its lifecycle. Transitions are monotonic:
// Pending -> InFlight -> (Succeeded | Pending again after a transient failure
// | Exhausted). Terminal states never regress.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusSucceeded
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in_flight"
	case StatusSucceeded:
		return "succeeded"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// SendJob is one recipient's slot in a batch. All fields are guarded by the
// queue lock except while a worker holds the job InFlight, in which case that
// worker owns it exclusively. The queue keeps jobs in load order, which is
// the dequeue tie-break.
type SendJob struct {
	Recipient  contact.Recipient
	Attachment *transport.Attachment

	text     string // rendered once, cached across attempts
	rendered bool

	Attempts int
	Status   Status
	LastErr  error

	eligibleAt time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// Config tunes one engine. Zero fields take the documented defaults.
type Config struct {
	// Workers is the dispatch pool size. The limiter is the true throughput
	// ceiling; workers mainly overlap provider I/O. Default 2.
	Workers int

	// RateCap admitted sends per RateWindow, hard cap. Defaults 20 per minute.
	RateCap    int
	RateWindow time.Duration

	// MaxAttempts is the total attempt ceiling per job (first try included).
	// Default 3.
	MaxAttempts int
	// RetryBase and RetryMaxDelay shape the exponential backoff between
	// attempts. Defaults 5s and 60s.
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// SendTimeout bounds one provider call. 0 disables the bound.
	SendTimeout time.Duration

	// ProgressPerSec throttles aggregate progress events. Default 10.
	ProgressPerSec int
	// FailureLogSize bounds the recent-failure list. Default 50.
	FailureLogSize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.RateCap <= 0 {
		c.RateCap = 20
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = time.Minute
	}
	if c.SendTimeout < 0 {
		c.SendTimeout = 0
	}
	if c.ProgressPerSec <= 0 {
		c.ProgressPerSec = 10
	}
	if c.FailureLogSize <= 0 {
		c.FailureLogSize = 50
	}
	return c
}

// Batch is the unit of work: one recipient list, one template, one optional
// attachment.
type Batch struct {
	// ID is assigned (uuid) when empty.
	ID         string
	Template   string
	Recipients []contact.Recipient
	Attachment *transport.Attachment
}

// JobResult is one archived terminal job in the final report.
type JobResult struct {
	Phone    string
	Status   Status
	Attempts int
	Error    string
}

// Report summarizes a finished (or stopped) run. Succeeded + Exhausted +
// Remaining always equals Total; Remaining is nonzero only after a stop.
type Report struct {
	BatchID   string
	Total     int
	Succeeded int
	Exhausted int
	Remaining int
	Stopped   bool
	Elapsed   time.Duration
	Results   []JobResult
}
