package retryclassify

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify_HTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Verdict
	}{
		{"ok", 200, VerdictOK},
		{"created", 201, VerdictOK},
		{"too many requests", 429, VerdictRetry},
		{"internal server error", 500, VerdictRetry},
		{"service unavailable", 503, VerdictRetry},
		{"bad request", 400, VerdictFatal},
		{"not found", 404, VerdictFatal},
		{"unauthorized", 401, VerdictFatal},
		{"bad gateway not in retryable set", 502, VerdictFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Outcome{Status: tt.status})
			if got != tt.want {
				t.Errorf("Classify(status=%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassify_TransportCodes(t *testing.T) {
	tests := []struct {
		name string
		code TransportCode
		want Verdict
	}{
		{"dns", TransportDNS, VerdictRetry},
		{"connect", TransportConnect, VerdictRetry},
		{"timeout", TransportTimeout, VerdictRetry},
		{"tls handshake", TransportTLSHandshake, VerdictRetry},
		{"callback abort", TransportCallbackAbort, VerdictRetry},
		{"send", TransportSend, VerdictRetry},
		{"receive", TransportReceive, VerdictRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Outcome{Transport: tt.code, Err: errors.New("boom")})
			if got != tt.want {
				t.Errorf("Classify(transport=%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestClassify_EAINoNameIsFatal(t *testing.T) {
	got := Classify(Outcome{Transport: TransportDNS, DNSNoName: true, Err: errors.New("no such host")})
	if got != VerdictFatal {
		t.Errorf("EAI_NONAME should be fatal, got %v", got)
	}
}

func TestClassify_OtherDNSIsRetryable(t *testing.T) {
	got := Classify(Outcome{Transport: TransportDNS, DNSNoName: false, Err: errors.New("temporary failure in name resolution")})
	if got != VerdictRetry {
		t.Errorf("non-EAI_NONAME DNS failure should retry, got %v", got)
	}
}

func TestClassify_StreamingEOFIsRetryable(t *testing.T) {
	got := Classify(Outcome{Err: fmt.Errorf("reading body: %w", errors.New("unexpected EOF"))})
	// generic wrapped error without io.EOF sentinel falls through to
	// substring matching
	if got != VerdictRetry {
		t.Fatalf("streaming EOF should retry, got %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header  string
		wantOK  bool
		wantDur time.Duration
	}{
		{"5", true, 5 * time.Second},
		{" 30 ", true, 30 * time.Second},
		{"", false, 0},
		{"not-a-number", false, 0},
		{"-1", false, 0},
	}

	for _, tt := range tests {
		d, ok := ParseRetryAfter(tt.header)
		if ok != tt.wantOK {
			t.Errorf("ParseRetryAfter(%q) ok = %v, want %v", tt.header, ok, tt.wantOK)
			continue
		}
		if ok && d != tt.wantDur {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.header, d, tt.wantDur)
		}
	}
}

func TestBackoff_ExponentialCapsAt256(t *testing.T) {
	for _, attempt := range []int{1, 5, 9, 20} {
		d := Backoff(attempt, nil)
		if d < 0 || d > 257*time.Second {
			t.Errorf("Backoff(%d) = %v, out of expected bounds", attempt, d)
		}
	}
	// attempt 9: 2^8 = 256, already capped; attempt 20 must still cap at 256+jitter.
	d := Backoff(20, nil)
	if d > 257*time.Second {
		t.Errorf("Backoff(20) = %v, expected capped near 256s", d)
	}
}

func TestBackoff_RetryAfterTakesPrecedence(t *testing.T) {
	ra := 42 * time.Second
	d := Backoff(1, &ra)
	if d < ra || d > ra+time.Second {
		t.Errorf("Backoff with Retry-After = %v, want within [%v, %v]", d, ra, ra+time.Second)
	}
}
