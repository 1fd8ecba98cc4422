package oidc

// Package oidc implements the IdentityProvider port against an OIDC/OAuth2
// provider, including the provider's passwordless magic-link endpoint.

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/ports"
)

// Provider implements the IdentityProvider port using OIDC/OAuth2.
type Provider struct {
	config       *oauth2.Config
	revokeURL    string
	magicLinkURL string
	httpClient   *http.Client

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	// RevokeURL is the RFC 7009 token revocation endpoint; optional.
	RevokeURL string
	// MagicLinkURL is the provider's passwordless link endpoint; optional,
	// magic-link sign-in is rejected when unset.
	MagicLinkURL string
	HTTPClient   *http.Client // Optional, defaults to a 30s-timeout client
}

// NewProvider creates a new OIDC provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{
		revokeURL:    cfg.RevokeURL,
		magicLinkURL: cfg.MagicLinkURL,
		httpClient:   httpClient,
	}

	// Initialize go-oidc provider and verifier (single discovery fetch)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: cfg.ClientID})

	p.config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

func (p *Provider) BeginRedirect(_ context.Context, in ports.BeginRedirectInput) (ports.RedirectFlow, error) {
	if in.ReturnURL == "" {
		return ports.RedirectFlow{}, apperrors.ProviderRejected("return URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return ports.RedirectFlow{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return ports.RedirectFlow{}, fmt.Errorf("generate nonce: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.AccessTypeOffline,
	}
	if in.ForceAccountChooser {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	}

	return ports.RedirectFlow{
		AuthURL: p.config.AuthCodeURL(state, opts...),
		State:   state,
		Nonce:   nonce,
	}, nil
}

// magicLinkRequest is the wire shape of the provider's passwordless endpoint.
type magicLinkRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (p *Provider) BeginMagicLink(ctx context.Context, email, returnURL string) error {
	if p.magicLinkURL == "" {
		return apperrors.ProviderRejected("magic-link sign-in is not configured")
	}
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}

	body, err := json.Marshal(magicLinkRequest{Email: email, RedirectTo: returnURL})
	if err != nil {
		return fmt.Errorf("marshal magic link request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.magicLinkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build magic link request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeProviderRejected, "magic link request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.ProviderRejected(fmt.Sprintf("magic link request refused: status %d", resp.StatusCode))
	}
	return nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ProviderSession, error) {
	if in.Code == "" {
		return ports.ProviderSession{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return ports.ProviderSession{}, errors.New("state is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return ports.ProviderSession{}, fmt.Errorf("exchange code for token: %w", err)
	}

	identity, err := p.identityFromToken(ctx, token, in.Nonce)
	if err != nil {
		return ports.ProviderSession{}, err
	}

	return ports.ProviderSession{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Identity:     identity,
	}, nil
}

func (p *Provider) LiveSession(ctx context.Context, refreshToken string) (ports.ProviderSession, error) {
	if refreshToken == "" {
		return ports.ProviderSession{}, apperrors.NotFound("no provider session available")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// The provider no longer honors this refresh token.
			return ports.ProviderSession{}, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "provider session expired")
		}
		return ports.ProviderSession{}, fmt.Errorf("refresh provider session: %w", err)
	}

	// Refresh grants may omit an id_token; nonce checking does not apply here.
	identity, err := p.identityFromToken(ctx, token, "")
	if err != nil {
		return ports.ProviderSession{}, err
	}

	// Providers may rotate or withhold the refresh token on refresh.
	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	return ports.ProviderSession{
		AccessToken:  token.AccessToken,
		RefreshToken: newRefresh,
		Identity:     identity,
	}, nil
}

func (p *Provider) Invalidate(ctx context.Context, refreshToken string) error {
	if p.revokeURL == "" || refreshToken == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("token_type_hint", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("revoke token: status %d", resp.StatusCode)
	}
	return nil
}

// idTokenClaims is the subset of OIDC claims the session core cares about.
type idTokenClaims struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	IssuedAt int64  `json:"iat"`
	Nonce    string `json:"nonce"`
}

// userInfoClaims is the shape read from the userinfo endpoint when the token
// response carries no id_token (refresh grants on some providers).
type userInfoClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

// identityFromToken resolves the canonical identity from an id_token when
// present, falling back to the userinfo endpoint otherwise.
func (p *Provider) identityFromToken(ctx context.Context, token *oauth2.Token, expectedNonce string) (domainauth.Identity, error) {
	rawID, hasIDToken := token.Extra("id_token").(string)
	if hasIDToken && rawID != "" {
		idTok, err := p.verifier.Verify(ctx, rawID)
		if err != nil {
			return domainauth.Identity{}, fmt.Errorf("verify id_token: %w", err)
		}
		var claims idTokenClaims
		if claimsErr := idTok.Claims(&claims); claimsErr != nil {
			return domainauth.Identity{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
		}
		if expectedNonce != "" && claims.Nonce != expectedNonce {
			return domainauth.Identity{}, errors.New("invalid nonce")
		}

		issuedAt := idTok.IssuedAt
		if issuedAt.IsZero() && claims.IssuedAt > 0 {
			issuedAt = time.Unix(claims.IssuedAt, 0).UTC()
		}
		return domainauth.Identity{
			ID:       claims.Sub,
			Email:    claims.Email,
			IssuedAt: issuedAt,
		}, nil
	}

	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("fetch user info: %w", err)
	}
	var claims userInfoClaims
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return domainauth.Identity{}, fmt.Errorf("decode user info: %w", claimsErr)
	}

	return domainauth.Identity{
		ID:       firstNonEmpty(claims.Subject, ui.Subject),
		Email:    firstNonEmpty(claims.Email, ui.Email),
		IssuedAt: time.Now().UTC(),
	}, nil
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least 'length' base64 URL-safe chars
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}
