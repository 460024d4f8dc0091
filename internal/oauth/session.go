// Package oauth implements the refresh protocol shared by every worker
// thread operating on one container handle's bearer token (§4.2). A Session
// is the mutable credential holder; EnsureFresh is the only entry point
// workers call before issuing a request.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rescale-labs/abfs/internal/constants"
	"github.com/rescale-labs/abfs/internal/logging"
	"github.com/rescale-labs/abfs/internal/retryclassify"
)

// CredentialKind tags which of the three session variants (§9) a Session
// holds. Only ClientCredentials and AuthCodeOrDeviceCodeFlow ever refresh
// via the token endpoint below; ManagedIdentity refreshes through the
// external collaborator supplied at construction.
type CredentialKind int

const (
	ClientCredentials CredentialKind = iota
	AuthCodeOrDeviceCodeFlow
	ManagedIdentity
)

// testTokenEndpoint overrides the token endpoint URL in tests; empty in production.
var testTokenEndpoint string

// ErrNoRefreshableCredential is returned when a Session needs a refresh and
// has no way to perform one: a ManagedIdentity session with no external
// refresher, or any other session with neither a refresh token nor a client
// secret.
var ErrNoRefreshableCredential = errors.New("oauth: session has no refreshable credential")

// ExternalRefresher is the capability a ManagedIdentity session refreshes
// through instead of POSTing to the token endpoint (spec §1: the core
// "accepts refreshed values" from an external collaborator).
type ExternalRefresher func(ctx context.Context) (bearer string, expiryUnix int64, err error)

// Session is the mutable {bearer, refresh?, expiry, tenant, client_id,
// client_secret?, scope, resource} tuple of §3, shared by every worker
// thread on one container handle. All fields below Kind are guarded by mu;
// read access to Bearer/Expiry outside of a refresh is lock-free by design
// (refreshes only ever widen the expiry, never shorten it), but this
// package always takes the lock for simplicity and because Go gives no
// cheaper memory-fence-only primitive than a mutex.
type Session struct {
	Kind CredentialKind

	mu         sync.Mutex
	cond       *sync.Cond
	refreshing bool

	bearer       string
	refresh      string // optional: refresh token, rotated on each use
	expiryUnix   int64
	tenant       string
	clientID     string
	clientSecret string // optional: present for client-credentials sessions
	scope        string
	resource     string

	external ExternalRefresher // only set for Kind == ManagedIdentity

	httpClient *http.Client
	log        *logging.Logger
}

// Config holds the fields needed to construct a Session. Exactly one of
// Refresh or ClientSecret should be set for non-ManagedIdentity sessions;
// both empty means the session can never refresh once its initial token
// expires.
type Config struct {
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
	Logger       *logging.Logger
}

// New constructs a Session from cfg. The token buffer itself has no fixed
// capacity in Go (strings grow as needed); the spec's "≥16,000 bytes"
// requirement is automatically satisfied.
func New(cfg Config) *Session {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultReadTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	s := &Session{
		Kind:         cfg.Kind,
		bearer:       cfg.Bearer,
		refresh:      cfg.Refresh,
		expiryUnix:   cfg.ExpiryUnix,
		tenant:       cfg.Tenant,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scope:        cfg.Scope,
		resource:     cfg.Resource,
		external:     cfg.External,
		httpClient:   httpClient,
		log:          log.Named("oauth"),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Bearer returns the current bearer token. Safe for concurrent use.
func (s *Session) Bearer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bearer
}

// ExpiryUnix returns the current expiry, in Unix seconds.
func (s *Session) ExpiryUnix() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiryUnix
}

func needsRefresh(now, expiry int64) bool {
	return now >= expiry-int64(constants.TokenGracePeriod.Seconds())
}

// EnsureFresh implements §4.2's refresh policy. If the token is within the
// 10-minute grace period of expiry, it refreshes; concurrent callers
// observing the same stale expiry coalesce onto a single in-flight refresh
// via the condition variable, rather than each issuing their own POST.
func (s *Session) EnsureFresh(ctx context.Context) error {
	s.mu.Lock()
	for {
		now := time.Now().Unix()
		if !needsRefresh(now, s.expiryUnix) {
			s.mu.Unlock()
			return nil
		}
		if !s.refreshing {
			break
		}
		s.cond.Wait()
	}
	s.refreshing = true
	s.mu.Unlock()

	err := s.refreshOnce(ctx)

	s.mu.Lock()
	s.refreshing = false
	s.cond.Broadcast()
	s.mu.Unlock()

	return err
}

// refreshOnce performs exactly one refresh attempt sequence (itself retried
// up to constants.DefaultRetries attempts via the classifier; a container
// handle's retry setting does not apply to it) and, on success,
// writes the new token back under the lock. It must not be called with mu held.
func (s *Session) refreshOnce(ctx context.Context) error {
	if s.Kind == ManagedIdentity {
		if s.external == nil {
			return ErrNoRefreshableCredential
		}
		bearer, expiry, err := s.external(ctx)
		if err != nil {
			return fmt.Errorf("oauth: managed identity refresh: %w", err)
		}
		s.mu.Lock()
		if expiry > s.expiryUnix {
			s.expiryUnix = expiry
		}
		s.bearer = bearer
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	refreshTok := s.refresh
	secret := s.clientSecret
	tenant := s.tenant
	clientID := s.clientID
	scope := s.scope
	resource := s.resource
	s.mu.Unlock()

	var form url.Values
	switch {
	case refreshTok != "":
		form = url.Values{
			"client_id":     {clientID},
			"refresh_token": {refreshTok},
			"grant_type":    {"refresh_token"},
			"scope":         {scope},
			"resource":      {resource},
		}
	case secret != "":
		form = url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {clientID},
			"client_secret": {secret},
			"resource":      {resource},
		}
	default:
		return ErrNoRefreshableCredential
	}

	tokenURL := fmt.Sprintf("https://login.microsoft.com/%s/oauth2/token", tenant)
	if testTokenEndpoint != "" {
		tokenURL = testTokenEndpoint
	}

	var resp tokenResponse
	attempt := 0
	for {
		attempt++
		r, err := s.postToken(ctx, tokenURL, form)
		outcome := retryclassify.Outcome{Err: err}
		if err == nil {
			outcome = retryclassify.Outcome{Status: r.status}
			if r.status >= 200 && r.status < 300 {
				if jsonErr := json.Unmarshal(r.body, &resp); jsonErr != nil {
					return fmt.Errorf("oauth: decoding token response: %w", jsonErr)
				}
			}
		}

		verdict := retryclassify.Classify(outcome)
		if verdict == retryclassify.VerdictOK {
			break
		}
		if verdict == retryclassify.VerdictFatal || attempt >= constants.DefaultRetries {
			if err != nil {
				return fmt.Errorf("oauth: token refresh failed after %d attempt(s): %w", attempt, err)
			}
			return fmt.Errorf("oauth: token refresh failed after %d attempt(s): status %d", attempt, r.status)
		}

		var retryAfter *time.Duration
		if r.retryAfter != nil {
			retryAfter = r.retryAfter
		}
		delay := retryclassify.Backoff(attempt, retryAfter)
		s.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying token refresh")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if resp.AccessToken == "" {
		return fmt.Errorf("oauth: token endpoint returned empty access_token")
	}

	s.mu.Lock()
	s.bearer = resp.AccessToken
	if resp.RefreshToken != "" {
		s.refresh = resp.RefreshToken
	}
	if resp.ExpiresOn > s.expiryUnix {
		s.expiryUnix = resp.ExpiresOn
	}
	s.mu.Unlock()

	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresOn    int64  `json:"expires_on,string"`
}

type rawResponse struct {
	status     int
	body       []byte
	retryAfter *time.Duration
}

func (s *Session) postToken(ctx context.Context, tokenURL string, form url.Values) (rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return rawResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return rawResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rawResponse{}, err
	}

	var retryAfter *time.Duration
	if d, ok := retryclassify.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
		retryAfter = &d
	}

	return rawResponse{status: resp.StatusCode, body: body, retryAfter: retryAfter}, nil
}
