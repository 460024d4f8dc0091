// Package resources picks the default thread budget for a container handle
// (§6): the host's CPU count, capped at constants.MaxThreadsPerHandle and by
// available memory, collapsing to a single thread on platforms without
// multi-thread transport support (§5 "Concurrency in the single-threaded
// host").
package resources

import (
	"runtime"

	"github.com/rescale-labs/abfs/internal/constants"
)

// memoryPerThread is the conservative per-worker memory budget (one
// in-flight block buffer plus transport overhead) used to cap thread count
// on memory-constrained hosts.
const memoryPerThread = 64 * 1024 * 1024

// DefaultThreads returns the n_threads a container handle should use when
// the caller didn't specify one: min(NumCPU, MaxThreadsPerHandle,
// memory-derived cap), collapsed to 1 if the host has no multi-thread
// transport support.
func DefaultThreads() int {
	if !SupportsMultithreadedTransport() {
		return 1
	}

	cores := runtime.NumCPU()
	n := cores
	if n > constants.MaxThreadsPerHandle {
		n = constants.MaxThreadsPerHandle
	}

	if memThreads := int(getAvailableMemory() / memoryPerThread); memThreads < n {
		n = memThreads
	}

	if n < 1 {
		n = 1
	}
	return n
}

// ClampThreads bounds a user-supplied n_threads to [1, MaxThreadsPerHandle],
// collapsing to 1 on hosts without multi-thread transport support.
func ClampThreads(n int) int {
	if !SupportsMultithreadedTransport() {
		return 1
	}
	if n < 1 {
		return 1
	}
	if n > constants.MaxThreadsPerHandle {
		return constants.MaxThreadsPerHandle
	}
	return n
}
