package oidc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/ports"
)

// newDiscoveryServer serves a minimal OIDC discovery document whose issuer is
// the server's own URL, as go-oidc requires.
func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		doc := map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"jwks_uri":               srv.URL + "/jwks",
		}
		_ = json.NewEncoder(w).Encode(doc)
	})
	srv = httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, mutate func(*ProviderConfig)) *Provider {
	t.Helper()

	discovery := newDiscoveryServer(t)
	cfg := ProviderConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scope:        "openid email",
		DiscoveryURL: discovery.URL,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	provider, err := NewProvider(cfg)
	require.NoError(t, err)
	return provider
}

func TestNewProvider_Success(t *testing.T) {
	discovery := newDiscoveryServer(t)

	provider, err := NewProvider(ProviderConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scope:        "openid email",
		DiscoveryURL: discovery.URL,
	})
	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.Equal(t, discovery.URL+"/auth", provider.config.Endpoint.AuthURL)
	assert.Equal(t, discovery.URL+"/token", provider.config.Endpoint.TokenURL)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name: "missing client ID",
			config: ProviderConfig{
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
				DiscoveryURL: "http://example.com",
			},
			errMsg: "client ID is required",
		},
		{
			name: "missing client secret",
			config: ProviderConfig{
				ClientID:     "client",
				RedirectURL:  "http://localhost/callback",
				DiscoveryURL: "http://example.com",
			},
			errMsg: "client secret is required",
		},
		{
			name: "missing redirect URL",
			config: ProviderConfig{
				ClientID:     "client",
				ClientSecret: "secret",
				DiscoveryURL: "http://example.com",
			},
			errMsg: "redirect URL is required",
		},
		{
			name: "missing discovery URL",
			config: ProviderConfig{
				ClientID:     "client",
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
			},
			errMsg: "discovery URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_BeginRedirect(t *testing.T) {
	provider := newTestProvider(t, nil)

	flow, err := provider.BeginRedirect(context.Background(), ports.BeginRedirectInput{
		ReturnURL: "/dashboard",
	})
	require.NoError(t, err)

	assert.Len(t, flow.State, 32)
	assert.Len(t, flow.Nonce, 32)

	u, err := url.Parse(flow.AuthURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, flow.State, q.Get("state"))
	assert.Equal(t, flow.Nonce, q.Get("nonce"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Empty(t, q.Get("prompt"))
}

func TestProvider_BeginRedirect_ForceAccountChooser(t *testing.T) {
	provider := newTestProvider(t, nil)

	flow, err := provider.BeginRedirect(context.Background(), ports.BeginRedirectInput{
		ReturnURL:           "/dashboard",
		ForceAccountChooser: true,
	})
	require.NoError(t, err)

	u, err := url.Parse(flow.AuthURL)
	require.NoError(t, err)
	assert.Equal(t, "select_account", u.Query().Get("prompt"))
}

func TestProvider_BeginRedirect_EmptyReturnURL(t *testing.T) {
	provider := newTestProvider(t, nil)

	_, err := provider.BeginRedirect(context.Background(), ports.BeginRedirectInput{})
	assert.True(t, apperrors.IsProviderRejected(err))
}

func TestProvider_BeginMagicLink(t *testing.T) {
	var gotBody magicLinkRequest
	magicSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer magicSrv.Close()

	provider := newTestProvider(t, func(cfg *ProviderConfig) {
		cfg.MagicLinkURL = magicSrv.URL
	})

	err := provider.BeginMagicLink(context.Background(), "ana@example.com", "/welcome")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", gotBody.Email)
	assert.Equal(t, "/welcome", gotBody.RedirectTo)
}

func TestProvider_BeginMagicLink_ProviderRefusal(t *testing.T) {
	magicSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer magicSrv.Close()

	provider := newTestProvider(t, func(cfg *ProviderConfig) {
		cfg.MagicLinkURL = magicSrv.URL
	})

	err := provider.BeginMagicLink(context.Background(), "ana@example.com", "/welcome")
	assert.True(t, apperrors.IsProviderRejected(err))
}

func TestProvider_BeginMagicLink_Unconfigured(t *testing.T) {
	provider := newTestProvider(t, nil)

	err := provider.BeginMagicLink(context.Background(), "ana@example.com", "/welcome")
	assert.True(t, apperrors.IsProviderRejected(err))
}

func TestProvider_BeginMagicLink_EmptyEmail(t *testing.T) {
	provider := newTestProvider(t, func(cfg *ProviderConfig) {
		cfg.MagicLinkURL = "http://example.com/magiclink"
	})

	err := provider.BeginMagicLink(context.Background(), "", "/welcome")
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))
}

func TestProvider_LiveSession_NoRefreshToken(t *testing.T) {
	provider := newTestProvider(t, nil)

	_, err := provider.LiveSession(context.Background(), "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProvider_Invalidate(t *testing.T) {
	var gotToken, gotHint string
	revokeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotToken = r.PostFormValue("token")
		gotHint = r.PostFormValue("token_type_hint")
		w.WriteHeader(http.StatusOK)
	}))
	defer revokeSrv.Close()

	provider := newTestProvider(t, func(cfg *ProviderConfig) {
		cfg.RevokeURL = revokeSrv.URL
	})

	require.NoError(t, provider.Invalidate(context.Background(), "refresh-abc"))
	assert.Equal(t, "refresh-abc", gotToken)
	assert.Equal(t, "refresh_token", gotHint)
}

func TestProvider_Invalidate_NoopWithoutConfig(t *testing.T) {
	provider := newTestProvider(t, nil)
	assert.NoError(t, provider.Invalidate(context.Background(), "refresh-abc"))
}

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ ports.IdentityProvider = (*Provider)(nil)
}

func TestGenerateRandomString(t *testing.T) {
	seen := make(map[string]bool)
	for range 20 {
		s, err := generateRandomString(32)
		require.NoError(t, err)
		assert.Len(t, s, 32)
		assert.False(t, seen[s], "random strings must not repeat")
		seen[s] = true
	}

	empty, err := generateRandomString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
