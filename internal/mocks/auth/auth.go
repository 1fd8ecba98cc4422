package auth

// Package auth contains simple hand-written test doubles for the session core
// ports. These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*MockIdentityProvider)(nil)
	_ ports.ProfileStore     = (*ScriptedProfileStore)(nil)
	_ ports.TokenStore       = (*MemoryTokenStore)(nil)
	_ ports.FlagSurface      = (*MemoryFlagSurface)(nil)
)

// MockIdentityProvider simulates the external identity provider with
// deterministic token material and per-method call counters.
type MockIdentityProvider struct {
	BeginRedirectFunc func(ctx context.Context, in ports.BeginRedirectInput) (ports.RedirectFlow, error)
	BeginMagicFunc    func(ctx context.Context, email, returnURL string) error
	ExchangeFunc      func(ctx context.Context, in ports.ExchangeInput) (ports.ProviderSession, error)
	LiveSessionFunc   func(ctx context.Context, refreshToken string) (ports.ProviderSession, error)
	InvalidateFunc    func(ctx context.Context, refreshToken string) error

	// DefaultSession is returned by Exchange and LiveSession when no func
	// override is installed.
	DefaultSession ports.ProviderSession

	mu               sync.Mutex
	ExchangeCalls    int
	LiveSessionCalls int
	InvalidateCalls  int
	MagicLinkCalls   int
}

// NewMockIdentityProvider creates a MockIdentityProvider with a deterministic
// default session.
func NewMockIdentityProvider() *MockIdentityProvider {
	return &MockIdentityProvider{
		DefaultSession: ports.ProviderSession{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			Identity: domainauth.Identity{
				ID:       "identity-1",
				Email:    "mock.user@example.com",
				IssuedAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
			},
		},
	}
}

func (m *MockIdentityProvider) BeginRedirect(ctx context.Context, in ports.BeginRedirectInput) (ports.RedirectFlow, error) {
	if m.BeginRedirectFunc != nil {
		return m.BeginRedirectFunc(ctx, in)
	}
	return ports.RedirectFlow{
		AuthURL: "https://mock-idp/authorize",
		State:   "state-1",
		Nonce:   "nonce-1",
	}, nil
}

func (m *MockIdentityProvider) BeginMagicLink(ctx context.Context, email, returnURL string) error {
	m.mu.Lock()
	m.MagicLinkCalls++
	m.mu.Unlock()
	if m.BeginMagicFunc != nil {
		return m.BeginMagicFunc(ctx, email, returnURL)
	}
	return nil
}

func (m *MockIdentityProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ProviderSession, error) {
	m.mu.Lock()
	m.ExchangeCalls++
	m.mu.Unlock()
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	return m.DefaultSession, nil
}

func (m *MockIdentityProvider) LiveSession(ctx context.Context, refreshToken string) (ports.ProviderSession, error) {
	m.mu.Lock()
	m.LiveSessionCalls++
	m.mu.Unlock()
	if m.LiveSessionFunc != nil {
		return m.LiveSessionFunc(ctx, refreshToken)
	}
	return m.DefaultSession, nil
}

func (m *MockIdentityProvider) Invalidate(ctx context.Context, refreshToken string) error {
	m.mu.Lock()
	m.InvalidateCalls++
	m.mu.Unlock()
	if m.InvalidateFunc != nil {
		return m.InvalidateFunc(ctx, refreshToken)
	}
	return nil
}

// ScriptedProfileStore returns a configured profile or error and counts calls.
type ScriptedProfileStore struct {
	Profile domainauth.Profile
	Err     error

	// FetchFunc overrides the scripted behavior entirely when set.
	FetchFunc func(ctx context.Context, identityID string) (domainauth.Profile, error)

	mu         sync.Mutex
	FetchCalls int
}

func (s *ScriptedProfileStore) FetchByIdentityID(ctx context.Context, identityID string) (domainauth.Profile, error) {
	s.mu.Lock()
	s.FetchCalls++
	s.mu.Unlock()
	if s.FetchFunc != nil {
		return s.FetchFunc(ctx, identityID)
	}
	if s.Err != nil {
		return domainauth.Profile{}, s.Err
	}
	return s.Profile, nil
}

// Calls returns the number of FetchByIdentityID invocations so far.
func (s *ScriptedProfileStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FetchCalls
}

// MemoryTokenStore is an in-memory token store for unit tests.
type MemoryTokenStore struct {
	mu     sync.Mutex
	values map[string]string
	// FailWrites makes Set return an error, for store-degradation tests.
	FailWrites bool
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{values: make(map[string]string)}
}

func (m *MemoryTokenStore) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if !ok {
		return "", apperrors.NotFoundf("artifact %q not found", name)
	}
	return v, nil
}

func (m *MemoryTokenStore) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return apperrors.StoreWriteFailed("memory token store write disabled")
	}
	m.values[name] = value
	return nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	return nil
}

func (m *MemoryTokenStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}

// Len returns the number of stored artifacts.
func (m *MemoryTokenStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// MemoryFlagSurface is an in-memory flag surface for unit tests.
type MemoryFlagSurface struct {
	mu    sync.Mutex
	flags domainauth.Flags
	// FailWrites makes Set return an error.
	FailWrites bool
}

func (m *MemoryFlagSurface) Set(_ context.Context, flags domainauth.Flags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return apperrors.StoreWriteFailed("memory flag surface write disabled")
	}
	m.flags = flags
	return nil
}

func (m *MemoryFlagSurface) Read(_ context.Context) (domainauth.Flags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags, nil
}

func (m *MemoryFlagSurface) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = domainauth.Flags{}
	return nil
}
