package dispatch

import "errors"

var (
	ErrRunning    = errors.New("dispatch: a batch is already running")
	ErrEmptyBatch = errors.New("dispatch: batch has no recipients")

	errDrained = errors.New("dispatch: queue drained")
	errStopped = errors.New("dispatch: stopped")
)
