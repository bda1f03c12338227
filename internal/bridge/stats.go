package bridge

import (
	"sync/atomic"
	"time"
)

// Stats holds the bridge's throughput and failure counters. Counters
// are monotonic; the latency figure is an exponentially weighted moving
// average over processed requests, so it tracks recent behavior instead
// of flattening out over long uptimes. Updated only by the dispatcher,
// read by monitors.
type Stats struct {
	sent      atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	latencyNs atomic.Int64
}

// recordOutcome folds one completed or failed dispatch into the stats.
// The latency average moves a fifth of the way toward each new sample.
func (b *Bridge) recordOutcome(success bool, elapsed time.Duration) {
	b.stats.processed.Add(1)
	if !success {
		b.stats.failed.Add(1)
	}
	for {
		old := b.stats.latencyNs.Load()
		next := elapsed.Nanoseconds()
		if old != 0 {
			next = old + (next-old)/5
		}
		if b.stats.latencyNs.CompareAndSwap(old, next) {
			return
		}
	}
}

// StatsSnapshot is a point-in-time copy of the bridge counters.
type StatsSnapshot struct {
	// RequestsSent is the number of requests accepted by Submit.
	RequestsSent uint64

	// RequestsProcessed is the number of requests that produced a
	// response (success or failure).
	RequestsProcessed uint64

	// RequestsFailed is the number of processed requests that failed.
	RequestsFailed uint64

	// RequestsRejected is the number of requests refused before
	// dispatch (gating, unknown kind, full queue).
	RequestsRejected uint64

	// AvgLatency is the exponentially weighted moving average of
	// handler latency.
	AvgLatency time.Duration
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() StatsSnapshot {
	return StatsSnapshot{
		RequestsSent:      b.stats.sent.Load(),
		RequestsProcessed: b.stats.processed.Load(),
		RequestsFailed:    b.stats.failed.Load(),
		RequestsRejected:  b.stats.rejected.Load(),
		AvgLatency:        time.Duration(b.stats.latencyNs.Load()),
	}
}

// Healthy reports whether the bridge success rate over processed
// requests exceeds 90%. A bridge that has processed nothing yet is
// healthy.
func (b *Bridge) Healthy() bool {
	processed := b.stats.processed.Load()
	if processed == 0 {
		return true
	}
	succeeded := processed - b.stats.failed.Load()
	return float64(succeeded)/float64(processed) > 0.9
}
