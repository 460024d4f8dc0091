package abfs

import "github.com/rescale-labs/abfs/internal/perf"

// PerfCounters is the process-global performance snapshot of §6: time
// spent sleeping on Retry-After, time spent sleeping through timeout-
// induced backoffs, and the count of each. JSON tags let a caller forward
// this straight into their own metrics pipeline.
type PerfCounters struct {
	MsWaitThrottled int64 `json:"ms_wait_throttled"`
	MsWaitTimeouts  int64 `json:"ms_wait_timeouts"`
	CountThrottled  int64 `json:"count_throttled"`
	CountTimeouts   int64 `json:"count_timeouts"`
}

// GetPerfCounters snapshots the process-global performance counters.
func GetPerfCounters() PerfCounters {
	s := perf.Get()
	return PerfCounters{
		MsWaitThrottled: s.MsWaitThrottled,
		MsWaitTimeouts:  s.MsWaitTimeouts,
		CountThrottled:  s.CountThrottled,
		CountTimeouts:   s.CountTimeouts,
	}
}

// ResetPerfCounters zeroes the process-global performance counters.
func ResetPerfCounters() {
	perf.Reset()
}
