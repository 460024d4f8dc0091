// Package abfs is a POSIX-like client for Azure Blob Storage: a container
// handle addresses one (storage_account, container, prefix) triple and
// exposes create/remove/list/stat/exists/delete/copy plus parallel
// block-blob upload and Range-GET download, all driven by the retry,
// refresh, and block-planning machinery under internal/.
package abfs

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rescale-labs/abfs/internal/azureurl"
	"github.com/rescale-labs/abfs/internal/blockplan"
	"github.com/rescale-labs/abfs/internal/constants"
	"github.com/rescale-labs/abfs/internal/copy"
	"github.com/rescale-labs/abfs/internal/download"
	"github.com/rescale-labs/abfs/internal/logging"
	"github.com/rescale-labs/abfs/internal/oauth"
	"github.com/rescale-labs/abfs/internal/pathutil"
	"github.com/rescale-labs/abfs/internal/resources"
	"github.com/rescale-labs/abfs/internal/transport"
	"github.com/rescale-labs/abfs/internal/upload"
	"github.com/rescale-labs/abfs/internal/validation"
)

// Config carries the per-handle tunables of §6's environment/configuration
// list. Zero values take the documented defaults; there are no global env
// vars consulted by the core.
type Config struct {
	// Prefix is prepended (via addprefix) to every blob name this handle
	// addresses. If containerName itself contains "/", the remainder
	// after the first "/" is appended to this prefix at construction.
	Prefix string

	// NThreads is the worker pool size for upload/download/copy. Zero
	// means resources.DefaultThreads(); any value is clamped to
	// [1, MaxThreadsPerHandle] and forced to 1 on hosts without
	// multi-thread transport support, with a warning logged.
	NThreads int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// NRetries is the first-try-inclusive retry budget for every request
	// this handle issues. Zero means constants.DefaultRetries.
	NRetries int

	// Verbosity maps to zerolog levels: 0 warn/error, 1 info, 2+ debug.
	Verbosity int

	// BlobURLBase overrides the default {account}.blob.core.windows.net
	// endpoint construction, for tests and Azurite-style emulators.
	BlobURLBase func(container, blob string) string
	// ContainerURLBase overrides the container-scoped base URL used by
	// create/remove-container and list-blobs. Nil in production.
	ContainerURLBase func(container string) string
	// AccountURLBase overrides the storage-account-scoped base URL used
	// by ListContainers. Nil in production.
	AccountURLBase func() string
}

// ContainerHandle is an immutable tuple after construction: storage
// account, container name, virtual-directory prefix, session, and the
// behavioral knobs of Config (§3 Data Model). Two handles compare equal
// (Equal) iff (storageAccount, containerName, prefix) match.
type ContainerHandle struct {
	storageAccount string
	containerName  string
	prefix         string
	session        *Session

	nThreads       int
	connectTimeout time.Duration
	readTimeout    time.Duration
	nRetries       int
	verbosity      int

	transport *transport.Client
	uploadEng *upload.Engine
	downEng   *download.Engine
	copyPipe  *copy.Pipeline
	log       *logging.Logger

	blobURLBase      func(container, blob string) string
	containerURLBase func(container string) string
	accountURLBase   func() string
}

// NewContainerHandle constructs a handle against storageAccount and
// containerName (which may itself carry a "/{remainder}" virtual-directory
// suffix, per §3's construction rule), authenticated by session.
func NewContainerHandle(storageAccount, containerName string, session *Session, cfg Config) (*ContainerHandle, error) {
	container, remainder := pathutil.SplitContainerPrefix(containerName)
	if err := validation.ValidateContainerName(container); err != nil {
		return nil, fmt.Errorf("abfs: %w", err)
	}

	prefix := cfg.Prefix
	if remainder != "" {
		prefix = pathutil.AddPrefix(prefix, remainder)
	}

	log := logging.New(nil, cfg.Verbosity)

	nThreads := cfg.NThreads
	if nThreads <= 0 {
		nThreads = resources.DefaultThreads()
	} else {
		nThreads = resources.ClampThreads(nThreads)
	}
	if !resources.SupportsMultithreadedTransport() {
		log.Warn().Msg("host platform lacks multi-thread transport support; n_threads forced to 1")
	}

	nRetries := cfg.NRetries
	if nRetries <= 0 {
		nRetries = constants.DefaultRetries
	}

	tr := transport.NewClient(transport.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		Logger:         log,
	})

	c := &ContainerHandle{
		storageAccount: storageAccount,
		containerName:  container,
		prefix:         prefix,
		session:        session,
		nThreads:       nThreads,
		connectTimeout: connectTimeoutOrDefault(cfg.ConnectTimeout),
		readTimeout:    readTimeoutOrDefault(cfg.ReadTimeout),
		nRetries:       nRetries,
		verbosity:      cfg.Verbosity,
		transport:      tr,
		log:            log,
		blobURLBase:      cfg.BlobURLBase,
		containerURLBase: cfg.ContainerURLBase,
		accountURLBase:   cfg.AccountURLBase,
	}

	c.uploadEng = &upload.Engine{
		Transport:      tr,
		Session:        session,
		StorageAccount: storageAccount,
		NThreads:       nThreads,
		MaxRetries:     nRetries,
		Log:            log,
		BlobURL:        cfg.BlobURLBase,
	}
	c.downEng = &download.Engine{
		Transport:      tr,
		Session:        session,
		StorageAccount: storageAccount,
		NThreads:       nThreads,
		MaxRetries:     nRetries,
		Log:            log,
		BlobURL:        cfg.BlobURLBase,
	}
	c.copyPipe = &copy.Pipeline{
		Transport:      tr,
		Session:        session,
		StorageAccount: storageAccount,
		NThreads:       nThreads,
		MaxRetries:     nRetries,
		Log:            log,
		BlobURL:        cfg.BlobURLBase,
	}

	return c, nil
}

func connectTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return constants.DefaultConnectTimeout
	}
	return d
}

func readTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return constants.DefaultReadTimeout
	}
	return d
}

// StorageAccount returns the handle's storage account name.
func (c *ContainerHandle) StorageAccount() string { return c.storageAccount }

// ContainerName returns the handle's bare container name (never including a
// prefix segment, even if the constructor's containerName argument carried one).
func (c *ContainerHandle) ContainerName() string { return c.containerName }

// Prefix returns the handle's virtual-directory prefix.
func (c *ContainerHandle) Prefix() string { return c.prefix }

// NThreads returns the worker pool size this handle was constructed with.
func (c *ContainerHandle) NThreads() int { return c.nThreads }

// Equal implements §3's handle equality: two handles compare equal iff
// (storage_account, container_name, prefix) match; other fields (session,
// n_threads, timeouts, ...) are purely behavioral.
func (c *ContainerHandle) Equal(other *ContainerHandle) bool {
	if other == nil {
		return false
	}
	return c.storageAccount == other.storageAccount &&
		c.containerName == other.containerName &&
		c.prefix == other.prefix
}

// DirName returns "container/prefix" (or just "container" if prefix is
// empty), the way the teacher's path-joining helpers name a virtual
// directory (§8 scenario S2: dirname(c) == "ct-b/p").
func (c *ContainerHandle) DirName() string {
	if c.prefix == "" {
		return c.containerName
	}
	return c.containerName + "/" + c.prefix
}

// AddPrefix resolves objectName against this handle's prefix (§3's
// addprefix), returning the fully-qualified blob name Azure sees.
func (c *ContainerHandle) AddPrefix(objectName string) string {
	return pathutil.AddPrefix(c.prefix, objectName)
}

// Blob returns a BlobHandle addressing name under this container's prefix.
func (c *ContainerHandle) Blob(name string) *BlobHandle {
	return &BlobHandle{container: c, name: name}
}

func (c *ContainerHandle) containerURL() string {
	if c.containerURLBase != nil {
		return c.containerURLBase(c.containerName)
	}
	return azureurl.Container(c.storageAccount, c.containerName)
}

func (c *ContainerHandle) accountURL() string {
	if c.accountURLBase != nil {
		return c.accountURLBase()
	}
	return azureurl.Account(c.storageAccount)
}

// blobURL resolves blobName the same way C5/C6/C7's BlobURL override does,
// so every facade operation and every transfer engine addresses the exact
// same URL for a given (container, blob).
func (c *ContainerHandle) blobURL(blobName string) string {
	if c.blobURLBase != nil {
		return c.blobURLBase(c.containerName, blobName)
	}
	return azureurl.Blob(c.storageAccount, c.containerName, blobName)
}

func (c *ContainerHandle) retryConfig(op string) transport.RetryConfig {
	return transport.RetryConfig{Session: c.session, MaxRetries: c.nRetries, Op: op}
}

// execStatus runs one retried request and returns the final HTTP status
// observed (0 if the request never got an HTTP response) alongside the
// drained body and the error Execute itself returned, so callers can
// special-case specific status codes (404, 409, ...) per §7's "a few
// operations absorb specific codes" without duplicating the retry loop.
func (c *ContainerHandle) execStatus(ctx context.Context, op string, buildReq func(bearer string) transport.Request) (int, []byte, error) {
	resp, err := c.transport.Execute(ctx, c.retryConfig(op), buildReq)
	return resp.Status, resp.Body, err
}

// CreateContainer implements §4.8's create-container verb. A 409 (already
// exists) is treated as success, per §7's "create container ignores 409".
func (c *ContainerHandle) CreateContainer(ctx context.Context) error {
	endpoint := azureurl.WithQuery(c.containerURL(), url.Values{"restype": {"container"}})

	status, body, err := c.execStatus(ctx, "create-container", func(bearer string) transport.Request {
		return transport.Request{Method: "PUT", URL: endpoint, Bearer: bearer}
	})
	if err == nil || status == 409 {
		return nil
	}
	return c.wrapErr("create-container", "", status, body, err)
}

// RemoveContainer implements §4.8's remove-container verb. When the
// handle's prefix is non-empty, every blob under the prefix is deleted
// first; the container itself is only deleted once no blobs remain under
// any other prefix (the handle's prefix models a virtual subdirectory, not
// necessarily the whole container).
func (c *ContainerHandle) RemoveContainer(ctx context.Context) error {
	if c.prefix != "" {
		names, err := c.ListBlobs(ctx, false)
		if err != nil {
			return fmt.Errorf("abfs: remove-container: listing blobs under prefix: %w", err)
		}
		for _, name := range names {
			if err := c.deleteBlobFullyQualified(ctx, name); err != nil {
				return fmt.Errorf("abfs: remove-container: deleting %s: %w", name, err)
			}
		}

		remaining, err := c.listBlobsRaw(ctx, "")
		if err != nil {
			return fmt.Errorf("abfs: remove-container: checking for remaining blobs: %w", err)
		}
		if len(remaining) > 0 {
			return nil
		}
	}

	endpoint := azureurl.WithQuery(c.containerURL(), url.Values{"restype": {"container"}})
	status, body, err := c.execStatus(ctx, "remove-container", func(bearer string) transport.Request {
		return transport.Request{Method: "DELETE", URL: endpoint, Bearer: bearer}
	})
	if err == nil || status == 404 {
		return nil
	}
	return c.wrapErr("remove-container", "", status, body, err)
}

// ListContainers implements §4.8's list-containers verb at storage-account
// scope, transparently following NextMarker pagination.
func (c *ContainerHandle) ListContainers(ctx context.Context) ([]string, error) {
	var names []string
	marker := ""
	for {
		q := url.Values{"comp": {"list"}}
		if marker != "" {
			q.Set("marker", marker)
		}
		endpoint := azureurl.WithQuery(c.accountURL()+"/", q)

		status, body, err := c.execStatus(ctx, "list-containers", func(bearer string) transport.Request {
			return transport.Request{Method: "GET", URL: endpoint, Bearer: bearer}
		})
		if err != nil {
			return nil, c.wrapErr("list-containers", "", status, body, err)
		}

		var doc enumerationResults
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("abfs: list-containers: parsing response: %w", err)
		}
		for _, ctr := range doc.Containers.Container {
			names = append(names, ctr.Name)
		}
		if doc.NextMarker == "" {
			break
		}
		marker = doc.NextMarker
	}
	return names, nil
}

// ListBlobs implements §4.8's list-blobs verb, scoped to this handle's
// prefix. When filterlist is true the returned names are stripped of the
// handle's prefix (§8 property 7); when false, fully-qualified names
// (including the prefix) are returned.
func (c *ContainerHandle) ListBlobs(ctx context.Context, filterlist bool) ([]string, error) {
	names, err := c.listBlobsRaw(ctx, c.prefix)
	if err != nil {
		return nil, err
	}
	if !filterlist || c.prefix == "" {
		return names, nil
	}
	stripped := make([]string, len(names))
	stripPrefix := c.prefix + "/"
	for i, n := range names {
		if len(n) > len(stripPrefix) && n[:len(stripPrefix)] == stripPrefix {
			stripped[i] = n[len(stripPrefix):]
		} else {
			stripped[i] = n
		}
	}
	return stripped, nil
}

// IterBlobs returns a range-over-func iterator over this handle's blobs
// (fully-qualified names), fetching pages lazily one NextMarker at a time
// instead of materializing the whole listing up front.
func (c *ContainerHandle) IterBlobs(ctx context.Context) func(yield func(string, error) bool) {
	return func(yield func(string, error) bool) {
		marker := ""
		for {
			q := url.Values{"restype": {"container"}, "comp": {"list"}}
			if c.prefix != "" {
				q.Set("prefix", c.prefix)
			}
			if marker != "" {
				q.Set("marker", marker)
			}
			endpoint := azureurl.WithQuery(c.containerURL(), q)

			status, body, err := c.execStatus(ctx, "list-blobs", func(bearer string) transport.Request {
				return transport.Request{Method: "GET", URL: endpoint, Bearer: bearer}
			})
			if err != nil {
				yield("", c.wrapErr("list-blobs", "", status, body, err))
				return
			}

			var doc enumerationResults
			if err := xml.Unmarshal(body, &doc); err != nil {
				yield("", fmt.Errorf("abfs: list-blobs: parsing response: %w", err))
				return
			}
			for _, b := range doc.Blobs.Blob {
				if !yield(b.Name, nil) {
					return
				}
			}
			if doc.NextMarker == "" {
				return
			}
			marker = doc.NextMarker
		}
	}
}

func (c *ContainerHandle) listBlobsRaw(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	marker := ""
	for {
		q := url.Values{"restype": {"container"}, "comp": {"list"}}
		if prefix != "" {
			q.Set("prefix", prefix)
		}
		if marker != "" {
			q.Set("marker", marker)
		}
		endpoint := azureurl.WithQuery(c.containerURL(), q)

		status, body, err := c.execStatus(ctx, "list-blobs", func(bearer string) transport.Request {
			return transport.Request{Method: "GET", URL: endpoint, Bearer: bearer}
		})
		if err != nil {
			return nil, c.wrapErr("list-blobs", "", status, body, err)
		}

		var doc enumerationResults
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("abfs: list-blobs: parsing response: %w", err)
		}
		for _, b := range doc.Blobs.Blob {
			names = append(names, b.Name)
		}
		if doc.NextMarker == "" {
			break
		}
		marker = doc.NextMarker
	}
	return names, nil
}

type enumerationResults struct {
	XMLName    xml.Name `xml:"EnumerationResults"`
	NextMarker string   `xml:"NextMarker"`
	Containers struct {
		Container []struct {
			Name string `xml:"Name"`
		} `xml:"Container"`
	} `xml:"Containers"`
	Blobs struct {
		Blob []struct {
			Name string `xml:"Name"`
		} `xml:"Blob"`
	} `xml:"Blobs"`
}

// StatBlob implements §4.8's stat-blob verb: a HEAD request whose
// Content-Length header gives the blob's size.
func (c *ContainerHandle) StatBlob(ctx context.Context, blobName string) (int64, error) {
	return c.headContentLength(ctx, c.AddPrefix(blobName))
}

func (c *ContainerHandle) headContentLength(ctx context.Context, fullBlobName string) (int64, error) {
	endpoint := c.blobURL(fullBlobName)
	resp, err := c.transport.Execute(ctx, c.retryConfig("stat-blob"), func(bearer string) transport.Request {
		return transport.Request{Method: "HEAD", URL: endpoint, Bearer: bearer}
	})
	if err != nil {
		return 0, c.wrapErr("stat-blob", fullBlobName, resp.Status, resp.Body, err)
	}
	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return 0, nil
	}
	var size int64
	if _, scanErr := fmt.Sscanf(cl, "%d", &size); scanErr != nil {
		return 0, fmt.Errorf("abfs: stat-blob: parsing Content-Length %q: %w", cl, scanErr)
	}
	return size, nil
}

// ExistsBlob implements §4.8's exists-blob verb: 404 maps to false; any
// other error propagates.
func (c *ContainerHandle) ExistsBlob(ctx context.Context, blobName string) (bool, error) {
	full := c.AddPrefix(blobName)
	endpoint := azureurl.WithQuery(c.blobURL(full), url.Values{"comp": {"metadata"}})

	status, body, err := c.execStatus(ctx, "exists-blob", func(bearer string) transport.Request {
		return transport.Request{Method: "GET", URL: endpoint, Bearer: bearer}
	})
	if err == nil {
		return true, nil
	}
	if status == 404 {
		return false, nil
	}
	return false, c.wrapErr("exists-blob", full, status, body, err)
}

// DeleteBlob implements §4.8's delete-blob verb: 404 is not an error
// (idempotent delete, §7/§8 property 8).
func (c *ContainerHandle) DeleteBlob(ctx context.Context, blobName string) error {
	return c.deleteBlobFullyQualified(ctx, c.AddPrefix(blobName))
}

func (c *ContainerHandle) deleteBlobFullyQualified(ctx context.Context, fullBlobName string) error {
	endpoint := c.blobURL(fullBlobName)
	status, body, err := c.execStatus(ctx, "delete-blob", func(bearer string) transport.Request {
		return transport.Request{Method: "DELETE", URL: endpoint, Bearer: bearer}
	})
	if err == nil || status == 404 {
		return nil
	}
	return c.wrapErr("delete-blob", fullBlobName, status, body, err)
}

// CopyBlob implements §4.8's server-side copy verb: a PUT carrying
// x-ms-copy-source against the destination, used for container→container
// replication. The call polls the destination's x-ms-copy-status header
// until the copy leaves "pending" (§4 supplemented feature 2), surfacing a
// PermanentService-kind error on "failed"/"aborted".
func (c *ContainerHandle) CopyBlob(ctx context.Context, dst *ContainerHandle, blobName string) error {
	srcFull := c.AddPrefix(blobName)
	dstFull := dst.AddPrefix(blobName)

	srcURL := c.blobURL(srcFull)
	dstURL := dst.blobURL(dstFull)

	status, body, err := dst.execStatus(ctx, "copy-blob", func(bearer string) transport.Request {
		return transport.Request{
			Method: "PUT",
			URL:    dstURL,
			Headers: map[string]string{
				"x-ms-copy-source": srcURL,
			},
			Bearer: bearer,
		}
	})
	if err != nil {
		return dst.wrapErr("copy-blob", dstFull, status, body, err)
	}

	return dst.pollCopyStatus(ctx, dstFull)
}

func (c *ContainerHandle) pollCopyStatus(ctx context.Context, fullBlobName string) error {
	endpoint := c.blobURL(fullBlobName)
	for {
		resp, err := c.transport.Execute(ctx, c.retryConfig("copy-blob-status"), func(bearer string) transport.Request {
			return transport.Request{Method: "HEAD", URL: endpoint, Bearer: bearer}
		})
		if err != nil {
			return c.wrapErr("copy-blob-status", fullBlobName, resp.Status, resp.Body, err)
		}

		switch resp.Header.Get("x-ms-copy-status") {
		case "", "success":
			return nil
		case "failed", "aborted":
			return newError(KindPermanentService, "copy-blob", c.containerName, fullBlobName, resp.Status,
				fmt.Errorf("server-side copy %s", resp.Header.Get("x-ms-copy-status")))
		default: // "pending"
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// WriteBlob uploads data as blobName's complete contents, using C5's
// parallel block-blob protocol (or its single-PUT fast path when the handle
// runs a single thread and the payload fits in one block).
func (c *ContainerHandle) WriteBlob(ctx context.Context, blobName string, data []byte, contentType string) error {
	full := c.AddPrefix(blobName)
	if err := validation.ValidateBlobName(full); err != nil {
		return newError(KindUnsupportedInput, "write-blob", c.containerName, full, 0, err)
	}
	err := c.uploadEng.UploadWithOptions(ctx, c.containerName, full, bytes.NewReader(data), int64(len(data)), upload.Options{
		ContentType:    contentType,
		SingleThreaded: c.nThreads <= 1,
	})
	if err != nil {
		return c.classifyErr("write-blob", full, err)
	}
	return nil
}

// WriteString is WriteBlob for a UTF-8 string payload with a text/plain
// content type, matching §8 scenario S1's string round-trip.
func (c *ContainerHandle) WriteString(ctx context.Context, blobName, data string) error {
	return c.WriteBlob(ctx, blobName, []byte(data), "text/plain; charset=utf-8")
}

// ReadBlob downloads blobName's complete contents via C6's parallel
// Range-GET engine, first issuing a stat to learn its size.
func (c *ContainerHandle) ReadBlob(ctx context.Context, blobName string) ([]byte, error) {
	full := c.AddPrefix(blobName)
	size, err := c.headContentLength(ctx, full)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	if err := c.downEng.ReadInto(ctx, c.containerName, full, buf, 0); err != nil {
		return nil, c.classifyErr("read-blob", full, err)
	}
	return buf, nil
}

// ReadString is ReadBlob returning a string, for round-tripping
// WriteString payloads (§8 scenario S1).
func (c *ContainerHandle) ReadString(ctx context.Context, blobName string) (string, error) {
	data, err := c.ReadBlob(ctx, blobName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UploadFile uploads a local file via C7's double-buffered copy pipeline,
// suitable for payloads too large to comfortably hold twice in memory (once
// as the caller's buffer, once as the block-plan's staging buffer).
func (c *ContainerHandle) UploadFile(ctx context.Context, blobName, localPath, contentType string) error {
	full := c.AddPrefix(blobName)
	if err := validation.ValidateBlobName(full); err != nil {
		return newError(KindUnsupportedInput, "upload-file", c.containerName, full, 0, err)
	}
	if err := c.copyPipe.UploadFile(ctx, c.containerName, full, localPath, contentType); err != nil {
		return c.classifyErr("upload-file", full, err)
	}
	return nil
}

// DownloadFile downloads blobName into localPath via C7's double-buffered
// copy pipeline, after stat'ing the blob to learn its size and pre-flight
// check local disk space.
func (c *ContainerHandle) DownloadFile(ctx context.Context, blobName, localPath string) error {
	full := c.AddPrefix(blobName)
	size, err := c.headContentLength(ctx, full)
	if err != nil {
		return err
	}
	if err := c.copyPipe.DownloadFile(ctx, c.containerName, full, localPath, size); err != nil {
		return c.classifyErr("download-file", full, err)
	}
	return nil
}

// classifyErr maps a write/upload/download failure that never reaches an
// HTTP outcome — the block planner rejecting an oversized payload, or the
// session finding no refreshable credential mid-transfer — onto this
// module's typed Error, the same way wrapErr classifies HTTP outcomes.
// Anything else passes through as a plain wrapped error.
func (c *ContainerHandle) classifyErr(op, blob string, err error) error {
	switch {
	case errors.Is(err, blockplan.ErrPayloadTooLarge):
		return newError(KindPayloadTooLarge, op, c.containerName, blob, 0, ErrPayloadTooLarge)
	case errors.Is(err, oauth.ErrNoRefreshableCredential):
		return newError(KindAuthFailure, op, c.containerName, blob, 0, ErrNoRefreshableCredential)
	default:
		return fmt.Errorf("abfs: %s %s: %w", op, blob, err)
	}
}

// wrapErr classifies a failed facade call into this module's typed Error,
// inferring Kind from the observed status the same way §7 assigns fatal
// outcomes to PermanentService unless a more specific kind applies.
func (c *ContainerHandle) wrapErr(op, blob string, status int, body []byte, err error) error {
	kind := KindPermanentService
	if status == 0 {
		kind = KindTransientService
	}
	if status == 400 && bytes.Contains(body, []byte("InvalidBlockList")) {
		kind = KindCommitRace
	}
	return newError(kind, op, c.containerName, blob, status, err)
}
