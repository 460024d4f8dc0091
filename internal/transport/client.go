// Package transport is the HTTP request primitive (C3, §4.3): one
// authenticated, time-bounded request in, one Outcome out. It owns the
// shared *http.Client (connection pooling, HTTP/2) and the progress
// watchdog that enforces read_timeout independently of connect_timeout.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"github.com/rescale-labs/abfs/internal/constants"
	"github.com/rescale-labs/abfs/internal/logging"
	"github.com/rescale-labs/abfs/internal/retryclassify"
)

// Config tunes the shared client. Zero values take the package defaults.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Logger         *logging.Logger
}

// Client issues individual requests against the Azure Blob Storage REST
// API. One Client is shared by every worker thread of one container
// handle, the way the teacher's CreateOptimizedClient produces one
// *http.Client reused across an entire upload or download.
type Client struct {
	http           *nethttp.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
	log            *logging.Logger
}

// NewClient builds the shared *http.Client with the connection-pool and
// HTTP/2 tuning the teacher's CreateOptimizedClient applies (large idle
// pool sized for many concurrent block requests, HTTP/2 multiplexing,
// compression disabled because block payloads are already binary).
func NewClient(cfg Config) *Client {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = constants.DefaultConnectTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = constants.DefaultReadTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	tr := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("ABFS_DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return &Client{
		http:           &nethttp.Client{Transport: tr, Timeout: 0},
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		log:            log.Named("transport"),
	}
}

// Request describes one outbound HTTP call. Bearer and APIVersion are
// attached automatically by Do; callers set only the request-specific
// fields.
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        io.Reader
	ContentType string
	Bearer      string
}

// Response is the successful half of an Outcome: status, headers, and the
// fully-drained body. Large bodies (range-GET downloads) are instead
// streamed directly into a caller buffer via DoInto.
type Response struct {
	Status     int
	Header     nethttp.Header
	Body       []byte
	RetryAfter *time.Duration
}

// Do issues req once (no retry — that is the caller's retry loop's job,
// via retryclassify) and enforces the two deadlines of §4.3: connect_timeout
// to establish TCP+TLS and receive the first byte, read_timeout as the
// maximum gap between byte-level progress thereafter.
func (c *Client) Do(ctx context.Context, req Request) (Response, retryclassify.Outcome) {
	data, resp, outcome := c.do(ctx, req)
	if resp == nil {
		return Response{}, outcome
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data, RetryAfter: outcome.RetryAfter}, outcome
}

// DoInto issues req and streams the response body directly into dst
// (used by the download engine to avoid an extra copy into a buffer the
// caller already owns). It returns the number of bytes written into dst.
func (c *Client) DoInto(ctx context.Context, req Request, dst io.Writer) (int64, retryclassify.Outcome) {
	n, resp, outcome := c.doStreaming(ctx, req, dst)
	_ = resp
	return n, outcome
}

func (c *Client) buildRequest(ctx context.Context, req Request, body io.Reader) (*nethttp.Request, error) {
	httpReq, err := nethttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}
	httpReq.Header.Set("x-ms-version", constants.APIVersion)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	return httpReq, nil
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, *nethttp.Response, retryclassify.Outcome) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bytesSent, bytesRecv int64
	var aborted int32

	var body io.Reader
	if req.Body != nil {
		body = &countingReader{r: req.Body, n: &bytesSent}
	}

	httpReq, err := c.buildRequest(ctx, req, body)
	if err != nil {
		return nil, nil, retryclassify.Outcome{Err: err}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go c.watchdog(cancel, &aborted, &bytesSent, &bytesRecv, stop, done)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		close(stop)
		<-done
		return nil, nil, classifyTransportErr(err, atomic.LoadInt32(&aborted) != 0)
	}
	defer resp.Body.Close()

	counted := &countingReader{r: resp.Body, n: &bytesRecv}
	data, readErr := io.ReadAll(counted)
	close(stop)
	<-done

	if readErr != nil {
		return nil, resp, classifyTransportErr(readErr, atomic.LoadInt32(&aborted) != 0)
	}

	var retryAfter *time.Duration
	if d, ok := retryclassify.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
		retryAfter = &d
	}
	return data, resp, retryclassify.Outcome{Status: resp.StatusCode, RetryAfter: retryAfter}
}

func (c *Client) doStreaming(ctx context.Context, req Request, dst io.Writer) (int64, *nethttp.Response, retryclassify.Outcome) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bytesSent, bytesRecv int64
	var aborted int32

	httpReq, err := c.buildRequest(ctx, req, req.Body)
	if err != nil {
		return 0, nil, retryclassify.Outcome{Err: err}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go c.watchdog(cancel, &aborted, &bytesSent, &bytesRecv, stop, done)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		close(stop)
		<-done
		return 0, nil, classifyTransportErr(err, atomic.LoadInt32(&aborted) != 0)
	}
	defer resp.Body.Close()

	counted := &countingReader{r: resp.Body, n: &bytesRecv}
	n, copyErr := io.Copy(dst, counted)
	close(stop)
	<-done

	if copyErr != nil {
		return n, resp, classifyTransportErr(copyErr, atomic.LoadInt32(&aborted) != 0)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return n, resp, retryclassify.Outcome{Status: resp.StatusCode}
	}
	return n, resp, retryclassify.Outcome{Status: resp.StatusCode}
}

// watchdog implements §4.3's progress monitor: sample bytes-sent and
// bytes-received every WatchdogSampleInterval; the allowed gap starts at
// connect_timeout (covering DNS+TCP+TLS+request write before any response
// byte arrives) and widens to read_timeout once the first byte of progress
// is observed, the same way a stalled connect and a stalled mid-transfer
// read both eventually trip the same watchdog.
func (c *Client) watchdog(cancel context.CancelFunc, aborted *int32, sent, recv *int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(constants.WatchdogSampleInterval)
	defer ticker.Stop()

	lastSent, lastRecv := atomic.LoadInt64(sent), atomic.LoadInt64(recv)
	deadline := time.Now().Add(c.connectTimeout)

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s, r := atomic.LoadInt64(sent), atomic.LoadInt64(recv)
			if s != lastSent || r != lastRecv {
				lastSent, lastRecv = s, r
				deadline = now.Add(c.readTimeout)
				continue
			}
			if now.After(deadline) {
				atomic.StoreInt32(aborted, 1)
				c.log.Warn().Msg("progress watchdog aborting stalled request")
				cancel()
				return
			}
		}
	}
}

// classifyTransportErr turns a raw net/http error into a retryclassify
// Outcome, tagging it as TransportCallbackAbort when the watchdog (not the
// caller's context) triggered the cancellation — that specific code is
// always retryable per §4.1.
func classifyTransportErr(err error, watchdogAborted bool) retryclassify.Outcome {
	if watchdogAborted {
		return retryclassify.Outcome{Transport: retryclassify.TransportCallbackAbort, Err: fmt.Errorf("request stalled: %w", err)}
	}
	var dnsErr *net.DNSError
	if asDNSError(err, &dnsErr) {
		return retryclassify.ClassifyDNS(dnsErr)
	}
	return retryclassify.Outcome{Err: err}
}

func asDNSError(err error, target **net.DNSError) bool {
	for err != nil {
		if d, ok := err.(*net.DNSError); ok {
			*target = d
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type countingReader struct {
	r io.Reader
	n *int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		atomic.AddInt64(c.n, int64(n))
	}
	return n, err
}
