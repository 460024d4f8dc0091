// Package upload implements the parallel block-blob upload engine (C5,
// §4.5): PLAN -> UPLOAD_BLOCKS -> COMMIT -> (RACE_RECOVER) -> DONE.
package upload

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rescale-labs/abfs/internal/azureurl"
	"github.com/rescale-labs/abfs/internal/blockplan"
	"github.com/rescale-labs/abfs/internal/logging"
	"github.com/rescale-labs/abfs/internal/transport"
)

// Engine drives one upload's state machine. It holds no per-upload state;
// Upload is safe to call concurrently from multiple goroutines against the
// same Engine as long as each call addresses a different blob.
type Engine struct {
	Transport      *transport.Client
	Session        transport.Refresher
	StorageAccount string
	NThreads       int
	MaxRetries     int
	Log            *logging.Logger

	// BlobURL overrides the default StorageAccount-derived endpoint
	// construction. Nil in production; set by tests and by callers
	// pointed at an Azurite-style emulator that doesn't live at
	// {account}.blob.core.windows.net.
	BlobURL func(container, blob string) string
}

func (e *Engine) blobURL(container, blob string) string {
	if e.BlobURL != nil {
		return e.BlobURL(container, blob)
	}
	return azureurl.Blob(e.StorageAccount, container, blob)
}

// Options carries the per-call knobs the facade (C8) exposes.
type Options struct {
	ContentType string // default application/octet-stream
	// SingleThreaded forces the single-PUT fast path regardless of size,
	// for hosts without multi-thread transport support (§4.8).
	SingleThreaded bool
}

func (e *Engine) contentType(opts Options) string {
	if opts.ContentType != "" {
		return opts.ContentType
	}
	return "application/octet-stream"
}

func (e *Engine) nThreads(opts Options) int {
	if opts.SingleThreaded {
		return 1
	}
	if e.NThreads < 1 {
		return 1
	}
	return e.NThreads
}

// Upload writes size bytes read from src (a ReaderAt over a contiguous,
// already-materialized payload, per §7's UnsupportedInput for anything
// else) to container/blob.
func (e *Engine) Upload(ctx context.Context, container, blob string, src io.ReaderAt, size int64) error {
	return e.UploadWithOptions(ctx, container, blob, src, size, Options{})
}

// UploadWithOptions is Upload with explicit per-call options.
func (e *Engine) UploadWithOptions(ctx context.Context, container, blob string, src io.ReaderAt, size int64, opts Options) error {
	nThreads := e.nThreads(opts)

	plan, err := blockplan.Plan(nThreads, maxInt64(size, 0), 0)
	if err != nil {
		return err
	}

	if size == 0 {
		return e.uploadTouch(ctx, container, blob, opts)
	}

	if plan.BlockCount == 1 && nThreads == 1 {
		return e.uploadSinglePut(ctx, container, blob, src, size, opts)
	}

	if err := e.uploadBlocks(ctx, container, blob, src, plan); err != nil {
		return err
	}

	return e.commit(ctx, container, blob, plan)
}

// uploadTouch implements the zero-byte "touch" case (§9 open question): a
// zero-length PUT is accepted by Azure but indistinguishable from an absent
// blob on some query paths, so a zero-byte upload writes one null byte
// instead of an empty body.
func (e *Engine) uploadTouch(ctx context.Context, container, blob string, opts Options) error {
	endpoint := e.blobURL(container, blob)

	_, err := e.Transport.Execute(ctx, transport.RetryConfig{
		Session:    e.Session,
		MaxRetries: e.MaxRetries,
		Op:         "put-blob-touch",
	}, func(bearer string) transport.Request {
		return transport.Request{
			Method: "PUT",
			URL:    endpoint,
			Headers: map[string]string{
				"x-ms-blob-type": "BlockBlob",
				"Content-Length": "1",
			},
			Body:        bytes.NewReader([]byte{0}),
			ContentType: e.contentType(opts),
			Bearer:      bearer,
		}
	})
	return err
}

// uploadSinglePut implements §4.5's "single-block fast path": one PUT of
// the whole payload with x-ms-blob-type: BlockBlob, no block/commit
// protocol at all.
func (e *Engine) uploadSinglePut(ctx context.Context, container, blob string, src io.ReaderAt, size int64, opts Options) error {
	body := io.NewSectionReader(src, 0, size)
	endpoint := e.blobURL(container, blob)

	_, err := e.Transport.Execute(ctx, transport.RetryConfig{
		Session:    e.Session,
		MaxRetries: e.MaxRetries,
		Op:         "put-blob",
	}, func(bearer string) transport.Request {
		_, _ = body.Seek(0, io.SeekStart)
		return transport.Request{
			Method: "PUT",
			URL:    endpoint,
			Headers: map[string]string{
				"x-ms-blob-type": "BlockBlob",
				"Content-Length": fmt.Sprintf("%d", size),
			},
			Body:        body,
			ContentType: e.contentType(opts),
			Bearer:      bearer,
		}
	})
	return err
}

// uploadBlocks fans out plan.BlockCount StageBlock requests across up to
// e.NThreads workers, the way the teacher's worker pool does, but expressed
// as an errgroup.Group with a bounded SetLimit rather than hand-rolled
// job/result channels.
func (e *Engine) uploadBlocks(ctx context.Context, container, blob string, src io.ReaderAt, plan blockplan.Plan) error {
	var g errgroup.Group
	g.SetLimit(e.nThreadsOrOne())

	endpoint := e.blobURL(container, blob)

	for i := range plan.Ranges {
		i := i
		g.Go(func() error {
			rng := plan.Ranges[i]
			id := plan.BlockIDs[i]
			section := io.NewSectionReader(src, rng.Offset, rng.Size)

			q := url.Values{"comp": {"block"}, "blockid": {id}}
			blockURL := azureurl.WithQuery(endpoint, q)

			_, err := e.Transport.Execute(ctx, transport.RetryConfig{
				Session:    e.Session,
				MaxRetries: e.MaxRetries,
				Op:         fmt.Sprintf("stage-block[%d]", i),
			}, func(bearer string) transport.Request {
				_, _ = section.Seek(0, io.SeekStart)
				return transport.Request{
					Method: "PUT",
					URL:    blockURL,
					Headers: map[string]string{
						"Content-Length": fmt.Sprintf("%d", rng.Size),
					},
					Body:        section,
					ContentType: "application/octet-stream",
					Bearer:      bearer,
				}
			})
			return err
		})
	}

	return g.Wait()
}

func (e *Engine) nThreadsOrOne() int {
	if e.NThreads < 1 {
		return 1
	}
	return e.NThreads
}

type blockListXML struct {
	XMLName     xml.Name `xml:"BlockList"`
	Uncommitted []string `xml:"Uncommitted"`
}

// commit implements COMMIT and, on an InvalidBlockList race, RACE_RECOVER.
func (e *Engine) commit(ctx context.Context, container, blob string, plan blockplan.Plan) error {
	doc := blockListXML{Uncommitted: plan.BlockIDs}
	body, err := xml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("upload: marshaling commit document: %w", err)
	}
	body = append([]byte(xml.Header), body...)

	endpoint := azureurl.WithQuery(e.blobURL(container, blob), url.Values{"comp": {"blocklist"}})

	resp, err := e.Transport.Execute(ctx, transport.RetryConfig{
		Session:    e.Session,
		MaxRetries: e.MaxRetries,
		Op:         "commit-block-list",
	}, func(bearer string) transport.Request {
		return transport.Request{
			Method:      "PUT",
			URL:         endpoint,
			Body:        bytes.NewReader(body),
			ContentType: "application/xml",
			Bearer:      bearer,
		}
	})
	if err == nil {
		return nil
	}

	if resp.Status != 400 || !bytes.Contains(resp.Body, []byte("InvalidBlockList")) {
		return err
	}

	return e.raceRecover(ctx, container, blob, plan)
}

// raceRecover implements §4.5's RACE_RECOVER: fetch the blob's currently
// committed block ids and, if they match the plan exactly, treat the
// original commit failure as a benign double-commit rather than an error.
func (e *Engine) raceRecover(ctx context.Context, container, blob string, plan blockplan.Plan) error {
	endpoint := azureurl.WithQuery(e.blobURL(container, blob), url.Values{"comp": {"blocklist"}})

	resp, err := e.Transport.Execute(ctx, transport.RetryConfig{
		Session:    e.Session,
		MaxRetries: e.MaxRetries,
		Op:         "get-block-list",
	}, func(bearer string) transport.Request {
		return transport.Request{Method: "GET", URL: endpoint, Bearer: bearer}
	})
	if err != nil {
		return fmt.Errorf("upload: race recovery failed to query committed blocks: %w", err)
	}

	var committed committedBlockListXML
	if err := xml.Unmarshal(resp.Body, &committed); err != nil {
		return fmt.Errorf("upload: race recovery: parsing committed block list: %w", err)
	}

	committedIDs := make([]string, 0, len(committed.CommittedBlocks))
	for _, b := range committed.CommittedBlocks {
		committedIDs = append(committedIDs, b.Name)
	}

	plannedIDs := append([]string(nil), plan.BlockIDs...)
	sort.Strings(plannedIDs)
	sort.Strings(committedIDs)

	if !equalStrings(plannedIDs, committedIDs) {
		return fmt.Errorf("upload: commit race recovery: committed block set does not match plan")
	}

	return nil
}

type committedBlockListXML struct {
	XMLName         xml.Name         `xml:"BlockList"`
	CommittedBlocks []blockListEntry `xml:"CommittedBlocks>Block"`
}

type blockListEntry struct {
	Name string `xml:"Name"`
	Size int64  `xml:"Size"`
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
