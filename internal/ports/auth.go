package ports

// Package ports defines interfaces (hexagonal ports) for the session core.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
)

// BeginRedirectInput carries inputs for initiating a redirect-based flow.
type BeginRedirectInput struct {
	ReturnURL string
	// ForceAccountChooser asks the provider to show its account picker even
	// when it already holds a live session.
	ForceAccountChooser bool
}

// RedirectFlow is the handle returned when a redirect flow is started. State
// and Nonce must round-trip through the callback for verification.
type RedirectFlow struct {
	AuthURL string
	State   string
	Nonce   string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// ProviderSession is the token material plus identity the provider reports for
// a live or just-established session.
type ProviderSession struct {
	AccessToken  string
	RefreshToken string
	Identity     domainauth.Identity
}

// IdentityProvider initiates and completes sign-in flows against the external
// identity provider. The core never sees the provider's wire format; adapters
// translate it into these shapes.
type IdentityProvider interface {
	// BeginRedirect starts a redirect-based flow and returns the URL the
	// browser must be sent to, plus the state and nonce to verify on return.
	BeginRedirect(ctx context.Context, in BeginRedirectInput) (RedirectFlow, error)

	// BeginMagicLink asks the provider to email a passwordless sign-in link.
	BeginMagicLink(ctx context.Context, email, returnURL string) error

	// Exchange redeems the provider's callback payload (authorization code)
	// for token material and the canonical identity.
	Exchange(ctx context.Context, in ExchangeInput) (ProviderSession, error)

	// LiveSession asks the provider for an existing live session using the
	// stored refresh token. Returns errors.NotFound when the provider holds
	// none.
	LiveSession(ctx context.Context, refreshToken string) (ProviderSession, error)

	// Invalidate tears down the provider-side session for the given refresh
	// token.
	Invalidate(ctx context.Context, refreshToken string) error
}

// ProfileStore is the authoritative remote store for application profiles,
// queried by identity id. Implementations return errors.NotFound when no
// profile row exists.
type ProfileStore interface {
	FetchByIdentityID(ctx context.Context, identityID string) (domainauth.Profile, error)
}

// Token store artifact names. The token store enforces no schema beyond what
// the core writes and reads under these keys.
const (
	ArtifactAccessToken  = "session.accessToken"
	ArtifactRefreshToken = "session.refreshToken"
	ArtifactIdentity     = "session.identity"
	ArtifactProfile      = "session.profile"
	ArtifactPendingEmail = "session.pendingEmail"
)

// TokenStore is the durable key-value surface holding named session artifacts.
// Values are string-serialized; lifetimes span process restarts.
type TokenStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
	// Clear removes every named artifact the core has written.
	Clear(ctx context.Context) error
}

// FlagSurface is the middleware-visible flag pair consumed by the route guard.
// Advisory only: authorization always happens against the live provider.
type FlagSurface interface {
	Set(ctx context.Context, flags domainauth.Flags) error
	Read(ctx context.Context) (domainauth.Flags, error)
	Clear(ctx context.Context) error
}

// Clock provides time to the core so freshness logic is testable.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
