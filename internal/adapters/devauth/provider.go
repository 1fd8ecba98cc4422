package devauth

// Package devauth provides a simple, config-driven IdentityProvider for local
// development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	"github.com/chambahq/identity-core/internal/ports"
)

// Config controls the dev identity provider behavior.
type Config struct {
	UserID string
	Email  string
}

// Provider implements ports.IdentityProvider for local development.
// It short-circuits the redirect flow by pointing the browser back at our own
// callback with locally generated state and nonce; Exchange ignores the code
// and returns the configured identity.
type Provider struct {
	userID string
	email  string
}

// NewProvider constructs a dev identity provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	return &Provider{userID: cfg.UserID, email: cfg.Email}, nil
}

// BeginRedirect returns a local callback URL and cryptographically secure
// state and nonce.
func (p *Provider) BeginRedirect(_ context.Context, _ ports.BeginRedirectInput) (ports.RedirectFlow, error) {
	state, err := randomString(24)
	if err != nil {
		return ports.RedirectFlow{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return ports.RedirectFlow{}, fmt.Errorf("generate nonce: %w", err)
	}
	// Our standard handler expects GET /auth/callback?code=...&state=...
	return ports.RedirectFlow{
		AuthURL: "/auth/callback?code=dev&state=" + state,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// BeginMagicLink pretends the link was sent; the dev flow signs in through
// the redirect path regardless.
func (p *Provider) BeginMagicLink(_ context.Context, email, _ string) error {
	if email == "" {
		return errors.New("dev auth: email is required")
	}
	return nil
}

// Exchange ignores the provided code/state/nonce (validation handled by the
// handler) and returns the dev identity.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (ports.ProviderSession, error) {
	return p.session(), nil
}

// LiveSession always reports the dev identity as signed in.
func (p *Provider) LiveSession(_ context.Context, _ string) (ports.ProviderSession, error) {
	return p.session(), nil
}

// Invalidate is a no-op; there is no remote session to tear down.
func (p *Provider) Invalidate(_ context.Context, _ string) error { return nil }

func (p *Provider) session() ports.ProviderSession {
	return ports.ProviderSession{
		AccessToken:  "dev-access-token",
		RefreshToken: "dev-refresh-token",
		Identity: domainauth.Identity{
			ID:       p.userID,
			Email:    p.email,
			IssuedAt: time.Now(),
		},
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < n {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:n], nil
}
