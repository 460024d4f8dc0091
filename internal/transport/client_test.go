package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDo_SuccessCapturesStatusAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-ms-version") == "" {
			t.Errorf("missing x-ms-version header")
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := NewClient(Config{ConnectTimeout: time.Second, ReadTimeout: time.Second})
	resp, outcome := c.Do(context.Background(), Request{Method: "GET", URL: srv.URL, Bearer: "tok"})

	if outcome.Status != 200 {
		t.Fatalf("status = %d, want 200", outcome.Status)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.Header.Get("ETag") != `"abc"` {
		t.Errorf("ETag not propagated")
	}
}

func TestDo_RetryAfterHeaderCaptured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	_, outcome := c.Do(context.Background(), Request{Method: "GET", URL: srv.URL})

	if outcome.Status != 429 {
		t.Fatalf("status = %d, want 429", outcome.Status)
	}
	if outcome.RetryAfter == nil || *outcome.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", outcome.RetryAfter)
	}
}

func TestDoInto_StreamsBodyDirectly(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	var buf bytes.Buffer
	n, outcome := c.DoInto(context.Background(), Request{Method: "GET", URL: srv.URL}, &buf)

	if outcome.Status != 200 {
		t.Fatalf("status = %d", outcome.Status)
	}
	if n != int64(len(payload)) {
		t.Errorf("n = %d, want %d", n, len(payload))
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("streamed body mismatch")
	}
}

func TestWatchdog_AbortsOnStall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{ConnectTimeout: 50 * time.Millisecond, ReadTimeout: 50 * time.Millisecond})
	c.readTimeout = 10 * time.Millisecond
	c.connectTimeout = 10 * time.Millisecond

	_, outcome := c.Do(context.Background(), Request{Method: "GET", URL: srv.URL})
	if outcome.Err == nil {
		t.Fatal("expected watchdog abort error")
	}
	if outcome.Transport != 42 {
		t.Errorf("Transport = %d, want TransportCallbackAbort (42)", outcome.Transport)
	}
}
