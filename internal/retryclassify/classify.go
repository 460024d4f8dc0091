// Package retryclassify decides whether an HTTP/transport outcome should be
// retried and, if so, how long to sleep before the next attempt. It is the
// leaf policy component every other package's retry loop calls into; it
// holds no state of its own.
package retryclassify

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"
)

// TransportCode mirrors the subset of libcurl's CURLcode space the spec
// names explicitly. A transport-layer failure that isn't one of these is
// reported as TransportOther and classified by string matching, the way the
// teacher's ClassifyError falls back to substring checks for errors that
// don't implement net.Error.
type TransportCode int

const (
	TransportNone          TransportCode = 0
	TransportDNS           TransportCode = 6
	TransportConnect       TransportCode = 7
	TransportTimeout       TransportCode = 28
	TransportTLSHandshake  TransportCode = 35
	TransportCallbackAbort TransportCode = 42
	TransportSend          TransportCode = 55
	TransportReceive       TransportCode = 56
	TransportOther         TransportCode = -1
)

var retryableTransportCodes = map[TransportCode]bool{
	TransportDNS:           true,
	TransportConnect:       true,
	TransportTimeout:       true,
	TransportTLSHandshake:  true,
	TransportCallbackAbort: true,
	TransportSend:          true,
	TransportReceive:       true,
}

var retryableHTTPStatus = map[int]bool{
	429: true,
	500: true,
	503: true,
}

// Outcome is what a single attempt produced: either an HTTP response
// (Status/RetryAfter populated) or a transport-layer failure (Err/Transport
// populated), never both.
type Outcome struct {
	// Status is the HTTP status code, or 0 if the request never completed.
	Status int
	// RetryAfter is the parsed Retry-After header, if the response carried one.
	RetryAfter *time.Duration
	// Transport is the classified transport code when Status == 0.
	Transport TransportCode
	// DNSNoName is true when the transport failure was a name-lookup
	// failure specifically of type EAI_NONAME, which is fatal rather than
	// retryable even though other DNS failures (TransportDNS) are not.
	DNSNoName bool
	// Err is the underlying error, for context/logging.
	Err error
}

// Verdict is the classifier's decision for one outcome.
type Verdict int

const (
	// VerdictOK means the outcome was a success; no retry needed.
	VerdictOK Verdict = iota
	// VerdictRetry means the caller should sleep and retry.
	VerdictRetry
	// VerdictFatal means the caller should surface the error immediately.
	VerdictFatal
)

// Classify implements §4.1: 429/500/503 and the named curl-like transport
// codes retry; EAI_NONAME is fatal even though it is a DNS failure; other
// DNS, connect, timeout, TLS, send/receive, and generic EOF/I-O failures
// during streaming retry.
func Classify(o Outcome) Verdict {
	if o.Status != 0 {
		if o.Status >= 200 && o.Status < 300 {
			return VerdictOK
		}
		if retryableHTTPStatus[o.Status] {
			return VerdictRetry
		}
		return VerdictFatal
	}

	if o.Err == nil {
		return VerdictOK
	}

	// A progress-watchdog abort also surfaces as context.Canceled; it is
	// tagged TransportCallbackAbort and retries like any other stall.
	if errors.Is(o.Err, context.Canceled) && o.Transport != TransportCallbackAbort {
		return VerdictFatal
	}

	if o.DNSNoName {
		return VerdictFatal
	}

	if retryableTransportCodes[o.Transport] {
		return VerdictRetry
	}

	if errors.Is(o.Err, context.DeadlineExceeded) || errors.Is(o.Err, io.EOF) || errors.Is(o.Err, io.ErrUnexpectedEOF) {
		return VerdictRetry
	}
	var netErr net.Error
	if errors.As(o.Err, &netErr) && netErr.Timeout() {
		return VerdictRetry
	}

	// Fall back to substring classification for errors that arrive as
	// plain *url.Error / transport strings rather than typed net.Error,
	// mirroring the teacher's ClassifyError last-resort path.
	s := strings.ToLower(o.Err.Error())
	switch {
	case strings.Contains(s, "no such host"), strings.Contains(s, "eai_noname"):
		return VerdictFatal
	case strings.Contains(s, "connection reset"),
		strings.Contains(s, "connection refused"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "i/o timeout"),
		strings.Contains(s, "tls handshake timeout"),
		strings.Contains(s, "eof"),
		strings.Contains(s, "server closed idle connection"),
		strings.Contains(s, "http2: server sent goaway"):
		return VerdictRetry
	}

	return VerdictFatal
}

// ClassifyDNS resolves a net.DNSError into TransportDNS, tagging DNSNoName
// when the resolver reported a not-found lookup (the EAI_NONAME case) as
// opposed to a transient resolver failure.
func ClassifyDNS(err *net.DNSError) Outcome {
	return Outcome{Transport: TransportDNS, DNSNoName: err.IsNotFound, Err: err}
}

// ParseRetryAfter parses an HTTP Retry-After header, which is always a
// decimal seconds count for this service (never an HTTP-date).
func ParseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Backoff implements §4.1's formula: sleep = min(2^(i-1), 256) + U[0,1)
// seconds for the i'th (1-based) retry attempt, or retryAfter + U[0,1) when
// the response carried a Retry-After header, which takes precedence.
func Backoff(attempt int, retryAfter *time.Duration) time.Duration {
	jitter := time.Duration(rand.Float64() * float64(time.Second))

	if retryAfter != nil {
		return *retryAfter + jitter
	}

	if attempt < 1 {
		attempt = 1
	}
	exp := float64(int64(1) << uint(attempt-1))
	capped := exp
	if capped > 256 {
		capped = 256
	}
	return time.Duration(capped*float64(time.Second)) + jitter
}
