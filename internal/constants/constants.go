// Package constants holds process-wide constants shared across the transfer
// engine: the wire API version, block/range sizing limits, and retry/backoff
// defaults. These are read-only after process start (§5 global mutable state).
package constants

import "time"

// APIVersion is the Azure Blob Storage REST API version sent as
// x-ms-version on every request (§6).
const APIVersion = "2021-08-06"

// Block sizing limits (§4.4).
const (
	// MinBlock is the size below which splitting a payload into more blocks
	// than n_threads stops paying for itself.
	MinBlock = 32 * 1024 * 1024

	// MaxBlock is the largest single block the service accepts.
	MaxBlock = 4000 * 1024 * 1024

	// MaxBlocks is the largest block count a single blob's commit list may hold.
	MaxBlocks = 50000
)

// Retry/backoff defaults (§4.1, §6).
const (
	// DefaultRetries is the default n_retries per container handle (first try inclusive).
	DefaultRetries = 10

	// MaxBackoff caps the exponential term of the backoff formula at 256s.
	MaxBackoff = 256 * time.Second
)

// Timeout defaults (§6).
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// TokenGracePeriod is the window before expiry at which C2 proactively
// refreshes rather than waiting for a request to observe an expired token (§4.2).
const TokenGracePeriod = 10 * time.Minute

// TokenBufferMinCapacity is the minimum guaranteed capacity of the session's
// token buffer (§3 Session).
const TokenBufferMinCapacity = 16000

// WatchdogSampleInterval is how often C3's progress watchdog samples
// bytes-sent/bytes-received to detect a stalled request (§4.3).
const WatchdogSampleInterval = 1 * time.Second

// DefaultCopyBufferSize is the total size of the two double-buffers used by
// the large-file copy pipeline (§4.7); each half is DefaultCopyBufferSize/2.
const DefaultCopyBufferSize = 2 * 1024 * 1024 * 1024

// MaxThreadsPerHandle bounds a container handle's n_threads regardless of
// CPU count, to keep connection pools and memory use sane on large hosts.
const MaxThreadsPerHandle = 32
