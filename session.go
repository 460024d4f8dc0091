package abfs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rescale-labs/abfs/internal/logging"
	"github.com/rescale-labs/abfs/internal/oauth"
)

// CredentialKind tags which of the three session variants (§9 design notes)
// a Session was constructed as. Only ClientCredentials and
// AuthCodeOrDeviceCodeFlow ever refresh by POSTing to the Microsoft token
// endpoint; ManagedIdentity refreshes through an externally supplied
// ExternalRefresher instead.
type CredentialKind int

const (
	ClientCredentials CredentialKind = iota
	AuthCodeOrDeviceCodeFlow
	ManagedIdentity
)

func (k CredentialKind) oauthKind() oauth.CredentialKind {
	switch k {
	case AuthCodeOrDeviceCodeFlow:
		return oauth.AuthCodeOrDeviceCodeFlow
	case ManagedIdentity:
		return oauth.ManagedIdentity
	default:
		return oauth.ClientCredentials
	}
}

// ExternalRefresher is the capability a ManagedIdentity session refreshes
// through instead of the token endpoint.
type ExternalRefresher func(ctx context.Context) (bearer string, expiryUnix int64, err error)

// SessionConfig constructs a Session. Exactly one of Refresh or
// ClientSecret should be set for ClientCredentials/AuthCodeOrDeviceCodeFlow
// sessions; External must be set for ManagedIdentity sessions. Leaving both
// empty on a non-managed-identity session means it can never refresh once
// its initial Bearer token expires.
type SessionConfig struct {
	Kind         CredentialKind
	Bearer       string
	Refresh      string
	ExpiryUnix   int64
	Tenant       string
	ClientID     string
	ClientSecret string
	Scope        string
	Resource     string
	External     ExternalRefresher
	HTTPClient   *http.Client
	Verbosity    int
}

// Session is the mutable {bearer, refresh?, expiry, tenant, client_id,
// client_secret?, scope, resource} tuple of §3: shared by every worker
// thread of one container handle, refreshed at most once per grace-period
// expiry regardless of how many workers observe it concurrently.
type Session struct {
	kind  CredentialKind
	inner *oauth.Session
}

// NewSession constructs a Session from cfg. A ManagedIdentity session with
// no External refresher, or a ClientCredentials/AuthCodeOrDeviceCodeFlow
// session with neither Refresh nor ClientSecret set, is still constructed
// successfully: it simply fails the first time EnsureFresh needs to
// actually refresh (ErrNoRefreshableCredential), exactly as §4.2 step 2's
// "else" branch describes.
func NewSession(cfg SessionConfig) *Session {
	var external oauth.ExternalRefresher
	if cfg.External != nil {
		external = oauth.ExternalRefresher(cfg.External)
	}

	log := logging.New(nil, cfg.Verbosity)

	return &Session{
		kind: cfg.Kind,
		inner: oauth.New(oauth.Config{
			Kind:         cfg.Kind.oauthKind(),
			Bearer:       cfg.Bearer,
			Refresh:      cfg.Refresh,
			ExpiryUnix:   cfg.ExpiryUnix,
			Tenant:       cfg.Tenant,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scope:        cfg.Scope,
			Resource:     cfg.Resource,
			External:     external,
			HTTPClient:   cfg.HTTPClient,
			Logger:       log,
		}),
	}
}

// Kind reports which credential variant this session was constructed as.
func (s *Session) Kind() CredentialKind { return s.kind }

// Bearer returns the current bearer token. Safe for concurrent use.
func (s *Session) Bearer() string { return s.inner.Bearer() }

// ExpiryUnix returns the current token expiry, in Unix seconds.
func (s *Session) ExpiryUnix() int64 { return s.inner.ExpiryUnix() }

// EnsureFresh implements §4.2's refresh policy, coalescing concurrent
// callers onto a single in-flight refresh. Container handles call this
// before every request; callers normally never need to call it directly.
func (s *Session) EnsureFresh(ctx context.Context) error {
	if err := s.inner.EnsureFresh(ctx); err != nil {
		if errors.Is(err, oauth.ErrNoRefreshableCredential) {
			return fmt.Errorf("abfs: refreshing session: %w: %w", ErrNoRefreshableCredential, err)
		}
		return fmt.Errorf("abfs: refreshing session: %w", err)
	}
	return nil
}
