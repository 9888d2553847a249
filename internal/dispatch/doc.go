// Package dispatch implements the bulk-send engine.
//
// A Batch pairs an ordered recipient list with one message template and an
// optional attachment. Run drains the batch through a bounded worker pool:
// each worker dequeues the next eligible job, renders the template, waits for
// a rate-limiter slot, invokes the transport, and routes the result through
// the retry policy.
//
// Delivery semantics
//
// Per-recipient failures never abort the batch. Transient failures are
// re-queued with exponential backoff up to a hard attempt ceiling; permanent
// failures (bad destination, unknown template field) finalize immediately.
// Every job ends Succeeded or Exhausted and appears in the final Report.
//
// The rate limiter is a hard sliding-window cap: no trailing window of the
// configured duration ever sees more than the configured number of admitted
// sends, across all workers combined.
//
// Stopping
//
// Stop is cooperative: in-flight sends complete and finalize, no new jobs are
// dequeued, and Pending jobs stay Pending in the snapshot so a caller can
// resume them later. Cancelling the run context additionally aborts in-flight
// transport calls.
package dispatch
