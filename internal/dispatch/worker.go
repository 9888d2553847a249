package dispatch

import (
	"context"
	"fmt"
	"time"

	"wablast/internal/storage"
	"wablast/internal/template"
	"wablast/internal/transport"
	"wablast/pkg/logx"
)

func (e *Engine) worker(ctx, gateCtx context.Context, q *queue, tr *tracker, idx int) {
	log := e.log.With(logx.Int("worker", idx))
	log.Debug("worker started")
	for {
		j, err := q.Next(ctx)
		if err != nil {
			log.Debug("worker stopped", logx.Err(err))
			return
		}
		e.process(ctx, gateCtx, q, tr, j, log)
	}
}

func (e *Engine) process(ctx, gateCtx context.Context, q *queue, tr *tracker, j *SendJob, log logx.Logger) {
	// A panic anywhere in the attempt must not strand the job InFlight: a
	// stuck InFlight count keeps the queue from ever draining and Run from
	// returning. Finalize it as Exhausted and keep the worker alive.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("dispatch: panic during send: %v", r)
		if q.Finalize(j, StatusExhausted, err) {
			tr.jobExhausted(j, err)
			e.persist(j)
		}
		log.Error("panic while processing job",
			logx.String("phone", j.Recipient.Phone),
			logx.Any("panic", r))
	}()

	wasRetry := j.Attempts > 1
	tr.jobStarted(wasRetry)

	// Render once and cache. A render failure is a validation problem with
	// this one contact: exhaust immediately, never retry, never abort the batch.
	if !j.rendered {
		text, err := template.Render(e.tmpl, j.Recipient)
		if err != nil {
			q.Finalize(j, StatusExhausted, err)
			tr.jobExhausted(j, err)
			e.persist(j)
			log.Warn("template render failed", logx.String("phone", j.Recipient.Phone), logx.Err(err))
			return
		}
		j.text = text
		j.rendered = true
	}

	// Rate gate. A cancellation here means the run is stopping and this
	// attempt never reached the provider: hand the job back untouched.
	if err := e.limiter.Acquire(gateCtx); err != nil {
		q.Release(j)
		tr.jobReleased(wasRetry)
		return
	}

	// Snapshot mutable settings so Apply() can't race this send.
	e.mu.Lock()
	pol := RetryPolicy{MaxAttempts: e.cfg.MaxAttempts, Base: e.cfg.RetryBase, MaxDelay: e.cfg.RetryMaxDelay}
	timeout := e.cfg.SendTimeout
	e.mu.Unlock()

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	start := time.Now()
	err := e.sender.Send(callCtx, transport.Target{Identity: j.Recipient.Phone}, j.text, j.Attachment)
	if cancel != nil {
		cancel()
	}

	if err == nil {
		q.Finalize(j, StatusSucceeded, nil)
		tr.jobSucceeded(j)
		e.persist(j)
		log.Debug("sent",
			logx.String("phone", j.Recipient.Phone),
			logx.Int("attempt", j.Attempts),
			logx.Duration("dur", time.Since(start)))
		return
	}

	verdict, delay := pol.Decide(err, j.Attempts)
	if verdict == VerdictRetry {
		q.Requeue(j, err, time.Now().Add(delay))
		tr.jobRetry(j, err)
		log.Debug("send retry scheduled",
			logx.String("phone", j.Recipient.Phone),
			logx.Int("attempt", j.Attempts),
			logx.Duration("delay", delay),
			logx.Err(err))
		return
	}

	q.Finalize(j, StatusExhausted, err)
	tr.jobExhausted(j, err)
	e.persist(j)
	log.Warn("send exhausted",
		logx.String("phone", j.Recipient.Phone),
		logx.Int("attempts", j.Attempts),
		logx.Err(err))
}

// persist appends a terminal job to the send log, best-effort.
func (e *Engine) persist(j *SendJob) {
	if e.store == nil {
		return
	}
	rec := storage.SendRecord{
		At:       j.finishedAt,
		BatchID:  e.batchID,
		Phone:    j.Recipient.Phone,
		Status:   j.Status.String(),
		Attempts: j.Attempts,
	}
	if j.LastErr != nil {
		rec.Error = j.LastErr.Error()
	}
	if !j.startedAt.IsZero() && !j.finishedAt.IsZero() {
		rec.TookMS = j.finishedAt.Sub(j.startedAt).Milliseconds()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.store.AppendSend(ctx, rec); err != nil {
		e.log.Debug("send log append failed", logx.Err(err))
	}
}
