// Package perf holds the process-global performance counters (§5, §6):
// atomically updated, reset on request, surfaced as a snapshot struct.
package perf

import "sync/atomic"

var (
	msWaitThrottled int64
	msWaitTimeouts  int64
	countThrottled  int64
	countTimeouts   int64
)

// Snapshot is the value returned by GetCounters; also the shape the root
// package re-exports as abfs.PerfCounters.
type Snapshot struct {
	MsWaitThrottled int64
	MsWaitTimeouts  int64
	CountThrottled  int64
	CountTimeouts   int64
}

// RecordThrottle adds ms spent sleeping on a Retry-After-driven backoff and
// increments the throttled count by one.
func RecordThrottle(ms int64) {
	atomic.AddInt64(&msWaitThrottled, ms)
	atomic.AddInt64(&countThrottled, 1)
}

// RecordTimeout adds ms spent sleeping through a timeout-induced
// (non-Retry-After) backoff and increments the timeout count by one.
func RecordTimeout(ms int64) {
	atomic.AddInt64(&msWaitTimeouts, ms)
	atomic.AddInt64(&countTimeouts, 1)
}

// Get returns a snapshot of all four counters.
func Get() Snapshot {
	return Snapshot{
		MsWaitThrottled: atomic.LoadInt64(&msWaitThrottled),
		MsWaitTimeouts:  atomic.LoadInt64(&msWaitTimeouts),
		CountThrottled:  atomic.LoadInt64(&countThrottled),
		CountTimeouts:   atomic.LoadInt64(&countTimeouts),
	}
}

// Reset zeroes all four counters.
func Reset() {
	atomic.StoreInt64(&msWaitThrottled, 0)
	atomic.StoreInt64(&msWaitTimeouts, 0)
	atomic.StoreInt64(&countThrottled, 0)
	atomic.StoreInt64(&countTimeouts, 0)
}
