package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the identity provider mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses a real OAuth/OIDC identity provider.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses a static dev identity (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// ProviderConfig contains the OAuth/OIDC identity provider settings.
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// MagicLinkURL is the provider endpoint that sends a one-time sign-in
	// link. Leave empty to disable the magic-link method.
	MagicLinkURL string `env:"MAGIC_LINK_URL"`

	// RevokeURL is the RFC 7009 token revocation endpoint. Leave empty to
	// skip remote invalidation on sign-out.
	RevokeURL string `env:"REVOKE_URL"`
}

// DevAuthConfig controls the static dev identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string `env:"USER_ID" envDefault:"dev-user"`
	Email  string `env:"EMAIL"   envDefault:"dev@example.com"`
}

// SessionConfig bounds the freshness and fallback behavior of the session
// core.
type SessionConfig struct {
	// FreshnessWindow is how long a resolved session is trusted without
	// re-validation against the provider.
	FreshnessWindow time.Duration `env:"FRESHNESS_WINDOW" envDefault:"24h"`

	// ProfileQueryTimeout bounds the primary profile lookup.
	ProfileQueryTimeout time.Duration `env:"PROFILE_QUERY_TIMEOUT" envDefault:"8s"`

	// ProfileFallbackMaxAge is the oldest cached profile snapshot the
	// fallback path will still serve.
	ProfileFallbackMaxAge time.Duration `env:"PROFILE_FALLBACK_MAX_AGE" envDefault:"168h"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.FreshnessWindow <= 0 {
		s.FreshnessWindow = 24 * time.Hour
	}
	if s.ProfileQueryTimeout <= 0 {
		s.ProfileQueryTimeout = 8 * time.Second
	}
	if s.ProfileFallbackMaxAge <= 0 {
		s.ProfileFallbackMaxAge = 7 * 24 * time.Hour
	}
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// Provider configuration (used when Mode=oauth).
	Provider ProviderConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Session configuration.
	Session SessionConfig `envPrefix:"SESSION_"`
}

// Sanitize applies guardrails to authentication configuration values.
func (a *AuthConfig) Sanitize() {
	a.Session.Sanitize()
}
