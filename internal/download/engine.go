// Package download implements the parallel Range-GET download engine (C6,
// §4.6): slice a byte range across worker threads and reassemble into
// caller-provided contiguous memory, with no synchronization needed since
// each worker owns a disjoint slice of the destination buffer.
package download

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/rescale-labs/abfs/internal/azureurl"
	"github.com/rescale-labs/abfs/internal/constants"
	"github.com/rescale-labs/abfs/internal/logging"
	"github.com/rescale-labs/abfs/internal/transport"
)

// Engine drives one download's fan-out across workers. Stateless beyond its
// configuration; safe for concurrent use against distinct blobs.
type Engine struct {
	Transport      *transport.Client
	Session        transport.Refresher
	StorageAccount string
	NThreads       int
	MaxRetries     int
	Log            *logging.Logger

	// BlobURL overrides the default StorageAccount-derived endpoint, for
	// emulator endpoints and tests. See internal/upload's identical field.
	BlobURL func(container, blob string) string
}

func (e *Engine) blobURL(container, blob string) string {
	if e.BlobURL != nil {
		return e.BlobURL(container, blob)
	}
	return azureurl.Blob(e.StorageAccount, container, blob)
}

func (e *Engine) nThreadsOrOne() int {
	if e.NThreads < 1 {
		return 1
	}
	return e.NThreads
}

// byteRange is one worker's slice of both the destination buffer and the
// requested blob range.
type byteRange struct {
	bufOffset int64
	size      int64
}

// plan partitions len(buf) bytes near-equally across effective threads, per
// §4.6: T_eff = clamp(L/MIN_BLOCK, 1, n_threads), first L%T_eff workers get
// one extra byte. This mirrors C4's partitioning but is independent of it
// since C6 has no block-commit protocol or block-id concept.
func plan(bufLen int64, nThreads int) []byteRange {
	tEff := bufLen / constants.MinBlock
	if tEff < 1 {
		tEff = 1
	}
	if tEff > int64(nThreads) {
		tEff = int64(nThreads)
	}

	base := bufLen / tEff
	remainder := bufLen % tEff

	ranges := make([]byteRange, 0, tEff)
	var offset int64
	for i := int64(0); i < tEff; i++ {
		size := base
		if i < remainder {
			size++
		}
		ranges = append(ranges, byteRange{bufOffset: offset, size: size})
		offset += size
	}
	return ranges
}

// ReadInto fills buf completely with the bytes of container/blob at
// [offset, offset+len(buf)). On any worker's fatal failure, buf's contents
// are unspecified and the error is returned (§4.6 correctness invariant).
func (e *Engine) ReadInto(ctx context.Context, container, blob string, buf []byte, offset int64) error {
	if len(buf) == 0 {
		return nil
	}

	nThreads := e.nThreadsOrOne()
	if nThreads == 1 {
		return e.readStreaming(ctx, container, blob, buf, offset)
	}

	ranges := plan(int64(len(buf)), nThreads)
	if len(ranges) == 1 {
		return e.readStreaming(ctx, container, blob, buf, offset)
	}

	endpoint := e.blobURL(container, blob)
	return e.readRanges(ctx, endpoint, ranges, offset, buf)
}

// readRanges fans the plan's ranges out across up to e.NThreads workers;
// each streams its GET response body directly into its disjoint slice of
// buf via ExecuteInto, so no intermediate whole-range buffering happens.
func (e *Engine) readRanges(ctx context.Context, endpoint string, ranges []byteRange, offset int64, buf []byte) error {
	var g errgroup.Group
	g.SetLimit(e.nThreadsOrOne())

	for i := range ranges {
		r := ranges[i]
		g.Go(func() error {
			rangeStart := offset + r.bufOffset
			rangeEnd := rangeStart + r.size - 1
			dst := sliceWriter{buf: buf, from: r.bufOffset, to: r.bufOffset + r.size}

			_, err := e.Transport.ExecuteInto(ctx, transport.RetryConfig{
				Session:    e.Session,
				MaxRetries: e.MaxRetries,
				Op:         fmt.Sprintf("get-range[%d-%d]", rangeStart, rangeEnd),
			}, func(bearer string) transport.Request {
				dst.pos = 0
				return transport.Request{
					Method: "GET",
					URL:    endpoint,
					Headers: map[string]string{
						"x-ms-range": fmt.Sprintf("bytes=%d-%d", rangeStart, rangeEnd),
					},
					Bearer: bearer,
				}
			}, &dst)
			return err
		})
	}

	return g.Wait()
}

// readStreaming is the single-thread path (§4.6): one GET of the whole
// requested range, its body streamed directly into buf.
func (e *Engine) readStreaming(ctx context.Context, container, blob string, buf []byte, offset int64) error {
	endpoint := e.blobURL(container, blob)
	rangeEnd := offset + int64(len(buf)) - 1

	dst := sliceWriter{buf: buf, from: 0, to: int64(len(buf))}

	_, err := e.Transport.ExecuteInto(ctx, transport.RetryConfig{
		Session:    e.Session,
		MaxRetries: e.MaxRetries,
		Op:         fmt.Sprintf("get-range[%d-%d]", offset, rangeEnd),
	}, func(bearer string) transport.Request {
		dst.pos = 0
		return transport.Request{
			Method: "GET",
			URL:    endpoint,
			Headers: map[string]string{
				"x-ms-range": fmt.Sprintf("bytes=%d-%d", offset, rangeEnd),
			},
			Bearer: bearer,
		}
	}, &dst)
	return err
}

// sliceWriter implements io.Writer over a fixed sub-slice of a shared
// buffer, so ExecuteInto's retry loop can re-open it (resetting pos) on a
// retried attempt without reallocating.
type sliceWriter struct {
	buf      []byte
	from, to int64
	pos      int64
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	remaining := (w.to - w.from) - w.pos
	if remaining <= 0 {
		return 0, io.ErrShortWrite
	}
	n := int64(len(p))
	if n > remaining {
		n = remaining
	}
	copy(w.buf[w.from+w.pos:w.from+w.pos+n], p[:n])
	w.pos += n
	if n < int64(len(p)) {
		return int(n), io.ErrShortWrite
	}
	return int(n), nil
}
