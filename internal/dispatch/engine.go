package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wablast/internal/eventbus"
	"wablast/internal/storage"
	"wablast/internal/template"
	"wablast/internal/transport"
	"wablast/pkg/logx"
)

// Engine runs batches. One engine runs one batch at a time; the limiter and
// config survive across runs so a resume sees the same pacing.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	sender transport.Sender
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store

	limiter *Limiter

	// per-run state; kept after the run so Snapshot still answers
	running bool
	stopCh  chan struct{}
	q       *queue
	tracker *tracker
	tmpl    string
	batchID string
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Engine {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:     cfg,
		sender:  sender,
		log:     log,
		bus:     bus,
		store:   store,
		limiter: NewLimiter(cfg.RateCap, cfg.RateWindow),
	}
}

// Apply retunes rate and retry settings, including mid-run (config hot
// reload). The worker pool size of a running batch is not resized.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.limiter.Apply(cfg.RateCap, cfg.RateWindow)
}

// Snapshot returns the live (or most recent) run's progress.
func (e *Engine) Snapshot() (Snapshot, bool) {
	e.mu.Lock()
	tr := e.tracker
	e.mu.Unlock()
	if tr == nil {
		return Snapshot{}, false
	}
	return tr.snapshot(), true
}

// Stop requests a cooperative stop of the running batch: in-flight sends
// complete and finalize, nothing new is dequeued, Pending jobs stay Pending.
// It does not wait; Run returns once the workers wind down.
func (e *Engine) Stop() {
	e.mu.Lock()
	ch := e.stopCh
	e.stopCh = nil
	q := e.q
	e.mu.Unlock()
	if ch != nil {
		close(ch)
	}
	if q != nil {
		q.Stop()
	}
}

// Run dispatches the batch and blocks until it drains or stops. Per-job
// failures are never returned as errors; they land in the Report. The error
// return covers only unrunnable input (empty batch, bad template, an engine
// already running).
func (e *Engine) Run(ctx context.Context, b *Batch) (*Report, error) {
	if b == nil || len(b.Recipients) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := template.Validate(b.Template); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrRunning
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	cfg := e.cfg
	jobs := make([]*SendJob, len(b.Recipients))
	for i, r := range b.Recipients {
		jobs[i] = &SendJob{Recipient: r, Attachment: b.Attachment}
	}
	q := newQueue(jobs)
	tr := newTracker(b.ID, len(jobs), cfg.FailureLogSize, cfg.ProgressPerSec, e.bus)
	stopCh := make(chan struct{})
	e.running = true
	e.stopCh = stopCh
	e.q = q
	e.tracker = tr
	e.tmpl = b.Template
	e.batchID = b.ID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.stopCh = nil
		e.mu.Unlock()
	}()

	start := time.Now()
	e.log.Info("batch started",
		logx.String("batch", b.ID),
		logx.Int("total", len(jobs)),
		logx.Int("workers", cfg.Workers),
		logx.Int("rate_cap", cfg.RateCap),
		logx.Duration("rate_window", cfg.RateWindow))

	// gateCtx governs the pre-send phase (rate gate). A cooperative stop
	// cancels it so workers parked at the gate release their jobs; sends
	// already on the wire only answer to ctx.
	gateCtx, cancelGate := context.WithCancel(ctx)
	defer cancelGate()
	go func() {
		select {
		case <-stopCh:
			cancelGate()
			q.Stop()
		case <-gateCtx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("panic in dispatch worker", logx.Int("worker", idx), logx.Any("panic", r))
				}
			}()
			e.worker(ctx, gateCtx, q, tr, idx)
		}()
	}
	wg.Wait()

	tr.publishDone()

	rep := buildReport(b.ID, jobs, time.Since(start))
	rep.Stopped = ctx.Err() != nil || stopRequested(stopCh)
	fields := []logx.Field{
		logx.String("batch", b.ID),
		logx.Int("succeeded", rep.Succeeded),
		logx.Int("exhausted", rep.Exhausted),
		logx.Int("remaining", rep.Remaining),
		logx.Duration("dur", rep.Elapsed),
	}
	if rep.Exhausted > 0 {
		e.log.Warn("batch finished with failures", fields...)
	} else {
		e.log.Info("batch finished", fields...)
	}
	return rep, nil
}

func stopRequested(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func buildReport(batchID string, jobs []*SendJob, elapsed time.Duration) *Report {
	rep := &Report{BatchID: batchID, Total: len(jobs), Elapsed: elapsed}
	for _, j := range jobs {
		switch j.Status {
		case StatusSucceeded:
			rep.Succeeded++
		case StatusExhausted:
			rep.Exhausted++
		default:
			rep.Remaining++
			continue
		}
		res := JobResult{Phone: j.Recipient.Phone, Status: j.Status, Attempts: j.Attempts}
		if j.LastErr != nil {
			res.Error = j.LastErr.Error()
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}
