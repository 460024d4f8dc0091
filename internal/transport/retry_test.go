package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeSession struct {
	token      string
	refreshed  int32
	refreshErr error
}

func (f *fakeSession) EnsureFresh(ctx context.Context) error {
	atomic.AddInt32(&f.refreshed, 1)
	return f.refreshErr
}
func (f *fakeSession) Bearer() string { return f.token }

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	sess := &fakeSession{token: "tok"}
	_, err := c.Execute(context.Background(), RetryConfig{Session: sess, MaxRetries: 5, Op: "test"}, func(bearer string) Request {
		if bearer != "tok" {
			t.Errorf("bearer = %q, want tok", bearer)
		}
		return Request{Method: "GET", URL: srv.URL}
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecute_FatalStopsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	_, err := c.Execute(context.Background(), RetryConfig{MaxRetries: 5, Op: "test"}, func(bearer string) Request {
		return Request{Method: "GET", URL: srv.URL}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on fatal)", calls)
	}
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{})
	_, err := c.Execute(context.Background(), RetryConfig{MaxRetries: 2, Op: "test"}, func(bearer string) Request {
		return Request{Method: "GET", URL: srv.URL}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}
