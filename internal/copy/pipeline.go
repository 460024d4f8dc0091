// Package copy implements the double-buffered large-file copy pipeline
// (C7, §4.7): overlap filesystem I/O with block-blob transfer by filling
// one buffer while the previous one is in flight over the wire.
package copy

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rescale-labs/abfs/internal/azureurl"
	"github.com/rescale-labs/abfs/internal/blockplan"
	"github.com/rescale-labs/abfs/internal/constants"
	"github.com/rescale-labs/abfs/internal/diskspace"
	"github.com/rescale-labs/abfs/internal/logging"
	"github.com/rescale-labs/abfs/internal/pathutil"
	"github.com/rescale-labs/abfs/internal/transfer"
	"github.com/rescale-labs/abfs/internal/transport"
	"github.com/rescale-labs/abfs/internal/validation"
)

// Progress is called once per buffer swap with the instantaneous MB/s of
// the just-completed read and write phases (§4.7: "Progress is reportable:
// instantaneous read MB/s and write MB/s per iteration").
type Progress func(readMBps, writeMBps float64)

// Pipeline drives one local<->blob large-file copy. Stateless beyond its
// configuration; a single Pipeline can be shared across concurrent
// UploadFile/DownloadFile calls against different files.
type Pipeline struct {
	Transport      *transport.Client
	Session        transport.Refresher
	StorageAccount string
	NThreads       int
	MaxRetries     int
	Log            *logging.Logger

	// BufferSize is the total size of the two double-buffers; each half
	// holds BufferSize/2 bytes. Zero means constants.DefaultCopyBufferSize.
	BufferSize int64

	// BlobURL overrides the default StorageAccount-derived endpoint. See
	// internal/upload's identical field.
	BlobURL func(container, blob string) string

	// OnProgress, if set, is called once per buffer swap with the
	// just-completed batch's instantaneous read/write MB/s (§4.7).
	OnProgress Progress
}

func (p *Pipeline) reportProgress(readBytesPerSec, writeBytesPerSec float64) {
	if p.OnProgress == nil {
		return
	}
	p.OnProgress(readBytesPerSec/(1024*1024), writeBytesPerSec/(1024*1024))
}

func (p *Pipeline) blobURL(container, blob string) string {
	if p.BlobURL != nil {
		return p.BlobURL(container, blob)
	}
	return azureurl.Blob(p.StorageAccount, container, blob)
}

func (p *Pipeline) nThreadsOrOne() int {
	if p.NThreads < 1 {
		return 1
	}
	return p.NThreads
}

func (p *Pipeline) halfBufferSize() int64 {
	size := p.BufferSize
	if size <= 0 {
		size = constants.DefaultCopyBufferSize
	}
	half := size / 2
	if half < 1 {
		half = 1
	}
	return half
}

// blockSizeFor picks the whole-file plan's per-block size so several
// blocks fit in one buffer half, letting stageBatch/fetchBatch fan a
// single batch out across p.NThreads workers rather than degenerating to
// one block per batch.
func (p *Pipeline) blockSizeFor(halfSize int64) int64 {
	size := halfSize / int64(p.nThreadsOrOne())
	if size < 1 {
		size = 1
	}
	return size
}

// batch is a contiguous run of the whole-file plan's blocks that fit in one
// buffer half.
type batch struct {
	firstIdx int
	lastIdx  int // inclusive
	size     int64
}

// planBatches groups plan's blocks, in order, into the fewest batches whose
// total size does not exceed halfSize, the unit swapped between the two
// buffers each iteration.
func planBatches(plan blockplan.Plan, halfSize int64) []batch {
	var batches []batch
	i := 0
	for i < len(plan.Ranges) {
		start := i
		var size int64
		for i < len(plan.Ranges) && (size == 0 || size+plan.Ranges[i].Size <= halfSize) {
			size += plan.Ranges[i].Size
			i++
		}
		batches = append(batches, batch{firstIdx: start, lastIdx: i - 1, size: size})
	}
	return batches
}

// UploadFile implements the local->blob direction of §4.7: the whole
// file's block plan is computed once, then blocks are read into one of
// two buffer halves in batches; each filled batch is staged to Azure
// asynchronously while the next batch is read into the other half.
func (p *Pipeline) UploadFile(ctx context.Context, container, blob, localPath string, contentType string) error {
	if err := validation.ValidateFilePath(localPath); err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	resolved, err := pathutil.ResolveAbsolutePath(localPath)
	if err != nil {
		return fmt.Errorf("copy: resolving %s: %w", localPath, err)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return fmt.Errorf("copy: opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("copy: stat %s: %w", localPath, err)
	}
	size := info.Size()

	tr := transfer.New(size, p.nThreadsOrOne())
	defer tr.Complete()

	endpoint := p.blobURL(container, blob)
	if size == 0 {
		return p.touch(ctx, endpoint, contentType)
	}

	halfSize := p.halfBufferSize()
	plan, err := blockplan.Plan(p.nThreadsOrOne(), size, p.blockSizeFor(halfSize))
	if err != nil {
		return fmt.Errorf("copy: planning blocks for %s: %w", localPath, err)
	}

	batches := planBatches(plan, halfSize)

	var bufs [2][]byte
	bufs[0] = make([]byte, halfSize)
	bufs[1] = make([]byte, halfSize)

	var pending [2]*errgroup.Group
	cur := 0

	for _, b := range batches {
		if pg := pending[cur]; pg != nil {
			if err := pg.Wait(); err != nil {
				return fmt.Errorf("copy: uploading %s: %w", localPath, err)
			}
		}

		readStart := time.Now()
		buf := bufs[cur][:b.size]
		var localOff int64
		for idx := b.firstIdx; idx <= b.lastIdx; idx++ {
			rng := plan.Ranges[idx]
			if _, err := f.ReadAt(buf[localOff:localOff+rng.Size], rng.Offset); err != nil && err != io.EOF {
				return fmt.Errorf("copy: reading %s at offset %d: %w", localPath, rng.Offset, err)
			}
			localOff += rng.Size
		}
		readElapsed := time.Since(readStart).Seconds()
		var readBps float64
		if readElapsed > 0 {
			readBps = float64(b.size) / readElapsed
			tr.RecordReadThroughput(readBps)
		}

		g := &errgroup.Group{}
		g.SetLimit(p.nThreadsOrOne())
		writeStart := time.Now()
		batchBuf := buf
		batchFirst := b.firstIdx
		batchSize := b.size
		g.Go(func() error {
			err := p.stageBatch(ctx, endpoint, plan, batchFirst, b.lastIdx, batchBuf)
			writeElapsed := time.Since(writeStart).Seconds()
			if err == nil && writeElapsed > 0 {
				writeBps := float64(batchSize) / writeElapsed
				tr.RecordWriteThroughput(writeBps)
				p.reportProgress(readBps, writeBps)
			}
			return err
		})
		pending[cur] = g

		cur = 1 - cur
	}

	for _, g := range pending {
		if g == nil {
			continue
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("copy: uploading %s: %w", localPath, err)
		}
	}

	return p.commit(ctx, endpoint, plan)
}

// stageBatch stages the blocks [firstIdx, lastIdx] of plan, whose bytes
// occupy buf starting at offset 0, fanning them out across up to
// p.NThreads workers exactly as C5's uploadBlocks does.
func (p *Pipeline) stageBatch(ctx context.Context, endpoint string, plan blockplan.Plan, firstIdx, lastIdx int, buf []byte) error {
	var g errgroup.Group
	g.SetLimit(p.nThreadsOrOne())

	var localOff int64
	for idx := firstIdx; idx <= lastIdx; idx++ {
		idx := idx
		rng := plan.Ranges[idx]
		id := plan.BlockIDs[idx]
		section := buf[localOff : localOff+rng.Size]
		localOff += rng.Size

		g.Go(func() error {
			q := url.Values{"comp": {"block"}, "blockid": {id}}
			blockURL := azureurl.WithQuery(endpoint, q)

			_, err := p.Transport.Execute(ctx, transport.RetryConfig{
				Session:    p.Session,
				MaxRetries: p.MaxRetries,
				Op:         fmt.Sprintf("copy-stage-block[%d]", idx),
			}, func(bearer string) transport.Request {
				return transport.Request{
					Method: "PUT",
					URL:    blockURL,
					Headers: map[string]string{
						"Content-Length": fmt.Sprintf("%d", len(section)),
					},
					Body:        bytes.NewReader(section),
					ContentType: "application/octet-stream",
					Bearer:      bearer,
				}
			})
			return err
		})
	}

	return g.Wait()
}

type blockListXML struct {
	XMLName     xml.Name `xml:"BlockList"`
	Uncommitted []string `xml:"Uncommitted"`
}

func (p *Pipeline) commit(ctx context.Context, endpoint string, plan blockplan.Plan) error {
	doc := blockListXML{Uncommitted: plan.BlockIDs}
	body, err := xml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("copy: marshaling commit document: %w", err)
	}
	body = append([]byte(xml.Header), body...)

	commitURL := azureurl.WithQuery(endpoint, url.Values{"comp": {"blocklist"}})

	_, err = p.Transport.Execute(ctx, transport.RetryConfig{
		Session:    p.Session,
		MaxRetries: p.MaxRetries,
		Op:         "copy-commit-block-list",
	}, func(bearer string) transport.Request {
		return transport.Request{
			Method:      "PUT",
			URL:         commitURL,
			Body:        bytes.NewReader(body),
			ContentType: "application/xml",
			Bearer:      bearer,
		}
	})
	return err
}

// touch handles the zero-byte case the same way C5 does (§9): a single
// null byte rather than an empty PUT body.
func (p *Pipeline) touch(ctx context.Context, endpoint, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := p.Transport.Execute(ctx, transport.RetryConfig{
		Session:    p.Session,
		MaxRetries: p.MaxRetries,
		Op:         "copy-put-blob-touch",
	}, func(bearer string) transport.Request {
		return transport.Request{
			Method: "PUT",
			URL:    endpoint,
			Headers: map[string]string{
				"x-ms-blob-type": "BlockBlob",
				"Content-Length": "1",
			},
			Body:        bytes.NewReader([]byte{0}),
			ContentType: contentType,
			Bearer:      bearer,
		}
	})
	return err
}

// DownloadFile implements the blob->local direction of §4.7: symmetric
// double-buffered range reads overlapped with filesystem writes. size is
// the blob's length (the caller has already stat'd it, e.g. via C8's stat
// blob operation) and drives both the pre-flight space check and the
// range plan.
func (p *Pipeline) DownloadFile(ctx context.Context, container, blob, localPath string, size int64) error {
	if err := validation.ValidateFilePath(localPath); err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	if err := diskspace.CheckAvailableSpace(localPath, size, 1.0); err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	resolved, err := pathutil.ResolveAbsolutePath(localPath)
	if err != nil {
		return fmt.Errorf("copy: resolving %s: %w", localPath, err)
	}

	f, err := os.OpenFile(resolved, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("copy: creating %s: %w", localPath, err)
	}
	defer f.Close()

	tr := transfer.New(size, p.nThreadsOrOne())
	defer tr.Complete()

	if size == 0 {
		return nil
	}

	halfSize := p.halfBufferSize()
	plan, err := blockplan.Plan(p.nThreadsOrOne(), size, p.blockSizeFor(halfSize))
	if err != nil {
		return fmt.Errorf("copy: planning ranges for %s: %w", localPath, err)
	}

	batches := planBatches(plan, halfSize)

	endpoint := p.blobURL(container, blob)

	var bufs [2][]byte
	bufs[0] = make([]byte, halfSize)
	bufs[1] = make([]byte, halfSize)

	var pending [2]*errgroup.Group
	var pendingWrite [2]func() error
	var batchReadBps [2]float64
	cur := 0

	for _, b := range batches {
		if pg := pending[cur]; pg != nil {
			if err := pg.Wait(); err != nil {
				return fmt.Errorf("copy: downloading %s: %w", localPath, err)
			}
			if err := pendingWrite[cur](); err != nil {
				return fmt.Errorf("copy: writing %s: %w", localPath, err)
			}
		}

		readStart := time.Now()
		buf := bufs[cur][:b.size]
		g := &errgroup.Group{}
		g.SetLimit(p.nThreadsOrOne())
		batchFirst, batchLast := b.firstIdx, b.lastIdx
		slot := cur
		g.Go(func() error {
			err := p.fetchBatch(ctx, endpoint, plan, batchFirst, batchLast, buf)
			readElapsed := time.Since(readStart).Seconds()
			if err == nil && readElapsed > 0 {
				readBps := float64(b.size) / readElapsed
				tr.RecordReadThroughput(readBps)
				batchReadBps[slot] = readBps
			}
			return err
		})
		pending[cur] = g

		fileStart := plan.Ranges[b.firstIdx].Offset
		batchBuf := buf
		pendingWrite[cur] = func() error {
			writeStart := time.Now()
			_, err := f.WriteAt(batchBuf, fileStart)
			writeElapsed := time.Since(writeStart).Seconds()
			if err == nil && writeElapsed > 0 {
				writeBps := float64(len(batchBuf)) / writeElapsed
				tr.RecordWriteThroughput(writeBps)
				p.reportProgress(batchReadBps[slot], writeBps)
			}
			return err
		}

		cur = 1 - cur
	}

	for i, g := range pending {
		if g == nil {
			continue
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("copy: downloading %s: %w", localPath, err)
		}
		if err := pendingWrite[i](); err != nil {
			return fmt.Errorf("copy: writing %s: %w", localPath, err)
		}
	}

	return nil
}

// fetchBatch issues one Range-GET per block in [firstIdx, lastIdx],
// writing each directly into its disjoint slice of buf, mirroring C6's
// readRanges fan-out.
func (p *Pipeline) fetchBatch(ctx context.Context, endpoint string, plan blockplan.Plan, firstIdx, lastIdx int, buf []byte) error {
	var g errgroup.Group
	g.SetLimit(p.nThreadsOrOne())

	var localOff int64
	for idx := firstIdx; idx <= lastIdx; idx++ {
		idx := idx
		rng := plan.Ranges[idx]
		from := localOff
		to := localOff + rng.Size
		localOff = to

		g.Go(func() error {
			dst := &batchSliceWriter{buf: buf, from: from, to: to}
			_, err := p.Transport.ExecuteInto(ctx, transport.RetryConfig{
				Session:    p.Session,
				MaxRetries: p.MaxRetries,
				Op:         fmt.Sprintf("copy-get-range[%d]", idx),
			}, func(bearer string) transport.Request {
				dst.pos = 0
				return transport.Request{
					Method: "GET",
					URL:    endpoint,
					Headers: map[string]string{
						"x-ms-range": fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Size-1),
					},
					Bearer: bearer,
				}
			}, dst)
			return err
		})
	}

	return g.Wait()
}

// batchSliceWriter is download's sliceWriter, duplicated here rather than
// imported since C6 is a sibling component, not a dependency of C7.
type batchSliceWriter struct {
	buf      []byte
	from, to int64
	pos      int64
}

func (w *batchSliceWriter) Write(p []byte) (int, error) {
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
