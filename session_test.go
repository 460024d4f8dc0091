package abfs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSession_NoRefreshNeeded(t *testing.T) {
	s := NewSession(SessionConfig{
		Kind:       ClientCredentials,
		Bearer:     "still-good",
		ExpiryUnix: time.Now().Add(time.Hour).Unix(),
	})
	if err := s.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if got := s.Bearer(); got != "still-good" {
		t.Errorf("Bearer() = %q, want %q", got, "still-good")
	}
	if got := s.Kind(); got != ClientCredentials {
		t.Errorf("Kind() = %v, want ClientCredentials", got)
	}
}

func TestSession_ManagedIdentityRefresh(t *testing.T) {
	var calls int
	s := NewSession(SessionConfig{
		Kind:       ManagedIdentity,
		ExpiryUnix: time.Now().Unix(), // already expired
		External: func(ctx context.Context) (string, int64, error) {
			calls++
			return "fresh-token", time.Now().Add(time.Hour).Unix(), nil
		},
	})
	if err := s.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("EnsureFresh() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("external refresher called %d times, want 1", calls)
	}
	if got := s.Bearer(); got != "fresh-token" {
		t.Errorf("Bearer() = %q, want %q", got, "fresh-token")
	}

	// a second call within the grace period must not refresh again.
	if err := s.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("second EnsureFresh() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("external refresher called %d times on a fresh token, want 1", calls)
	}
}

func TestSession_ManagedIdentityNoExternal(t *testing.T) {
	s := NewSession(SessionConfig{
		Kind:       ManagedIdentity,
		ExpiryUnix: time.Now().Unix(),
	})
	err := s.EnsureFresh(context.Background())
	if err == nil {
		t.Fatal("EnsureFresh() with no External refresher should fail once the token is stale")
	}
	if !errors.Is(err, ErrNoRefreshableCredential) {
		t.Errorf("error = %v, want wrapping ErrNoRefreshableCredential", err)
	}
}

func TestSession_ExpiryUnix(t *testing.T) {
	want := time.Now().Add(2 * time.Hour).Unix()
	s := NewSession(SessionConfig{Kind: ClientCredentials, Bearer: "b", ExpiryUnix: want})
	if got := s.ExpiryUnix(); got != want {
		t.Errorf("ExpiryUnix() = %d, want %d", got, want)
	}
}
