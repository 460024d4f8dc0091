// Package transfer wraps one file transfer's thread budget and observed
// throughput into a single handle. The copy pipeline (C7) creates one per
// file upload or download; the upload (C5) and download (C6) engines do not
// use it.
package transfer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rescale-labs/abfs/internal/resources"
)

// Transfer is one operation's resource handle: how many worker threads it
// was given and a running record of its observed throughput.
type Transfer struct {
	id       string
	fileSize int64
	threads  int

	mu          sync.Mutex
	readSamples []float64
	writeSample []float64
	completed   bool
}

// New allocates a Transfer for an operation against a payload of the given
// size, requesting threads (0 = resources.DefaultThreads()).
func New(fileSize int64, threads int) *Transfer {
	if threads <= 0 {
		threads = resources.DefaultThreads()
	} else {
		threads = resources.ClampThreads(threads)
	}
	return &Transfer{
		id:       uuid.NewString(),
		fileSize: fileSize,
		threads:  threads,
	}
}

// GetThreads returns the number of threads allocated for this transfer.
func (t *Transfer) GetThreads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threads
}

// RecordReadThroughput records an instantaneous filesystem read rate
// (bytes/sec), for C7's per-iteration read MB/s reporting.
func (t *Transfer) RecordReadThroughput(bytesPerSecond float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readSamples = append(t.readSamples, bytesPerSecond)
}

// RecordWriteThroughput records an instantaneous network write rate
// (bytes/sec), for C7's per-iteration write MB/s reporting.
func (t *Transfer) RecordWriteThroughput(bytesPerSecond float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSample = append(t.writeSample, bytesPerSecond)
}

// AverageThroughput returns the mean recorded read and write rates in
// MB/s, for a final progress report.
func (t *Transfer) AverageThroughput() (readMBps, writeMBps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return average(t.readSamples) / (1024 * 1024), average(t.writeSample) / (1024 * 1024)
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// Complete marks the transfer done. Idempotent.
func (t *Transfer) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = true
}

// GetID returns the transfer's unique correlation id.
func (t *Transfer) GetID() string {
	return t.id
}

func (t *Transfer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Transfer[id=%s threads=%d size=%d completed=%v]",
		t.id, t.threads, t.fileSize, t.completed)
}
