package dispatch

import (
	"math/rand"
	"time"

	"wablast/internal/transport"
)

// Verdict is the retry policy's decision for one failed attempt.
type Verdict int

const (
	// VerdictRetry re-enqueues the job as Pending with a backoff delay.
	VerdictRetry Verdict = iota
	// VerdictExhaust finalizes the job; retrying is pointless or the
	// attempt ceiling is reached.
	VerdictExhaust
)

// RetryPolicy decides what happens after a failed send. It is stateless;
// the attempt count lives on the job.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	MaxDelay    time.Duration
}

// Decide maps a send failure and the attempts already made (the failed one
// included) to the job's next step. Permanent classifications exhaust
// immediately regardless of remaining attempts; unclassified errors count as
// transient.
func (p RetryPolicy) Decide(err error, attempts int) (Verdict, time.Duration) {
	if transport.Classify(err) == transport.ClassPermanent {
		return VerdictExhaust, 0
	}
	if attempts >= p.MaxAttempts {
		return VerdictExhaust, 0
	}
	return VerdictRetry, p.backoff(attempts)
}

// backoff returns the delay before attempt+1: base doubled per attempt,
// capped, with 0.7..1.3 jitter so a struggling provider isn't hit by every
// worker at once.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 5 * time.Second
	}
	maxD := p.MaxDelay
	if maxD <= 0 {
		maxD = time.Minute
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
