package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/mail"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/observability/metrics"
	"github.com/chambahq/identity-core/internal/ports"
)

// callbackKey is the single-flight key guarding every mutating resolution.
// Routing callback completion and live re-checks through one key means no two
// write-throughs for the same device can interleave.
const callbackKey = "callback_processing"

const defaultFreshnessWindow = 24 * time.Hour

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Provider ports.IdentityProvider
	Profiles *ProfileResolver
	Tokens   ports.TokenStore
	Flags    ports.FlagSurface
	Clock    ports.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	// FreshnessWindow is the maximum age at which a cached session is trusted
	// without re-validation.
	FreshnessWindow time.Duration
}

// SessionService orchestrates sign-in flows and keeps the three session
// surfaces (in-process cache, token store, flag surface) consistent. It is
// constructed once at process start per device scope; no ambient globals.
type SessionService struct {
	provider ports.IdentityProvider
	profiles *ProfileResolver
	tokens   ports.TokenStore
	flags    ports.FlagSurface
	clock    ports.Clock
	logger   *slog.Logger
	metrics  *metrics.Collector
	window   time.Duration

	cache *sessionCache

	// sf deduplicates concurrent resolutions; mu serializes surface mutation
	// so sign-out never interleaves with an in-flight write-through.
	sf singleflight.Group
	mu sync.Mutex
	// gen increments on sign-out; a resolution that started before the bump
	// must not commit.
	gen uint64
}

// errSignedOutMidFlight aborts a commit whose resolution started before a
// sign-out tore the surfaces down.
var errSignedOutMidFlight = errors.New("signed out during session resolution")

// NewSessionService constructs a new SessionService.
func NewSessionService(opts SessionServiceOptions) *SessionService {
	clock := opts.Clock
	if clock == nil {
		clock = ports.ClockFunc(time.Now)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.FreshnessWindow
	if window <= 0 {
		window = defaultFreshnessWindow
	}
	return &SessionService{
		provider: opts.Provider,
		profiles: opts.Profiles,
		tokens:   opts.Tokens,
		flags:    opts.Flags,
		clock:    clock,
		logger:   logger,
		metrics:  opts.Metrics,
		window:   window,
		cache:    newSessionCache(window),
	}
}

// StartSignInInput carries parameters for starting a sign-in flow.
type StartSignInInput struct {
	Method domainauth.SignInMethod
	// Email is required for the magic_link method.
	Email string
	// ReturnURL is where the provider sends the browser after sign-in.
	ReturnURL string
	// ForceAccountChooser applies to oauth_redirect only.
	ForceAccountChooser bool
}

// StartSignInResult is the outcome of StartSignIn. Exactly one of the fields
// is populated: Existing on the fast path, Flow for a redirect flow, and
// PendingEmail after a magic link was sent.
type StartSignInResult struct {
	Existing     *domainauth.Session
	Flow         *ports.RedirectFlow
	PendingEmail string
}

// StartSignIn begins a sign-in flow. When a fresh session is already cached
// it is returned immediately without contacting the provider; otherwise the
// external flow is initiated and the identity only becomes available through
// CompleteCallback.
func (s *SessionService) StartSignIn(ctx context.Context, in StartSignInInput) (*StartSignInResult, error) {
	if sess, ok := s.freshCached(); ok {
		return &StartSignInResult{Existing: &sess}, nil
	}

	switch in.Method {
	case domainauth.MethodOAuthRedirect:
		return s.startRedirect(ctx, in)
	case domainauth.MethodMagicLink:
		return s.startMagicLink(ctx, in)
	default:
		return nil, apperrors.ValidationField("method", "unknown sign-in method")
	}
}

func (s *SessionService) startRedirect(ctx context.Context, in StartSignInInput) (*StartSignInResult, error) {
	flow, err := s.provider.BeginRedirect(ctx, ports.BeginRedirectInput{
		ReturnURL:           in.ReturnURL,
		ForceAccountChooser: in.ForceAccountChooser,
	})
	if err != nil {
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrap(err, apperrors.ErrCodeProviderRejected, "provider refused redirect flow")
		}
		return nil, err
	}

	s.metrics.RecordSignInStarted(string(domainauth.MethodOAuthRedirect))
	return &StartSignInResult{Flow: &flow}, nil
}

func (s *SessionService) startMagicLink(ctx context.Context, in StartSignInInput) (*StartSignInResult, error) {
	if in.Email == "" {
		return nil, apperrors.ValidationField("email", "email is required for magic-link sign-in")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperrors.ValidationField("email", "email address is not valid")
	}

	if err := s.provider.BeginMagicLink(ctx, in.Email, in.ReturnURL); err != nil {
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrap(err, apperrors.ErrCodeProviderRejected, "provider refused magic link")
		}
		return nil, err
	}

	// Persist the submitted email so the UI can redisplay it after the
	// redirect. Convenience artifact only: a write failure is not fatal.
	if err := s.tokens.Set(ctx, ports.ArtifactPendingEmail, in.Email); err != nil {
		s.logger.WarnContext(ctx, "persist pending email failed", "error", err)
	}

	s.metrics.RecordSignInStarted(string(domainauth.MethodMagicLink))
	return &StartSignInResult{PendingEmail: in.Email}, nil
}

// CallbackInput is the provider-issued material extracted from the return
// payload. An empty Code makes the resolution fall back to asking the
// provider for an existing live session.
type CallbackInput struct {
	Code  string
	State string
	Nonce string
}

// CallbackResult is the outcome of a completed callback resolution.
type CallbackResult struct {
	Identity           domainauth.Identity
	Profile            *domainauth.Profile
	RequiresOnboarding bool
	Session            domainauth.Session
}

// CompleteCallback processes the provider's asynchronous return. It is
// idempotent under concurrency: concurrent invocations share one underlying
// resolution, and a re-entry after completion is served from the cache while
// the freshness window holds.
func (s *SessionService) CompleteCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if sess, ok := s.freshCached(); ok {
		return resultFromSession(sess), nil
	}

	ch := s.sf.DoChan(callbackKey, func() (any, error) {
		// The resolution always runs to completion so the cache is populated
		// for the next caller even when this one stops waiting.
		return s.resolveAndCommit(context.WithoutCancel(ctx), in)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.metrics.RecordCallbackShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		result, ok := res.Val.(*CallbackResult)
		if !ok {
			return nil, apperrors.Internal("unexpected resolution result type")
		}
		return result, nil
	}
}

// resolveAndCommit performs the full resolution and three-surface
// write-through. It is only ever entered through the single-flight group.
func (s *SessionService) resolveAndCommit(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	// A caller can race past the outer cache check right as a previous
	// resolution finishes; serve it from the cache instead of re-resolving.
	if sess, ok := s.freshCached(); ok {
		return resultFromSession(sess), nil
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	started := s.clock.Now()

	provSess, err := s.resolveProviderSession(ctx, in)
	if err != nil {
		s.metrics.RecordCallback(metrics.ResultError, s.clock.Now().Sub(started))
		return nil, err
	}

	profile, err := s.profiles.Resolve(ctx, provSess.Identity.ID)
	if err != nil {
		if !apperrors.IsProfileUnavailable(err) {
			s.metrics.RecordCallback(metrics.ResultError, s.clock.Now().Sub(started))
			return nil, apperrors.Wrap(err, apperrors.ErrCodeCallbackFailed, "resolve profile")
		}
		// Both profile paths failed: treated as "no profile", the user is
		// routed through role selection.
		s.logger.WarnContext(ctx, "profile unavailable, continuing without one", "error", err)
		profile = nil
	}

	sess := domainauth.Session{
		AccessToken:  provSess.AccessToken,
		RefreshToken: provSess.RefreshToken,
		Identity:     provSess.Identity,
		Profile:      profile,
		ResolvedAt:   s.clock.Now(),
	}

	if err := s.commitSession(ctx, sess, gen); err != nil {
		if errors.Is(err, errSignedOutMidFlight) {
			s.metrics.RecordCallback(metrics.ResultError, s.clock.Now().Sub(started))
			return nil, apperrors.Wrap(err, apperrors.ErrCodeCallbackFailed, "sign-out interrupted callback processing")
		}
		// Durable surfaces rolled back; the session survives in the
		// in-process cache for the rest of this run.
		s.logger.ErrorContext(ctx, "session write-through failed, serving from memory only", "error", err)
	}

	if err := s.tokens.Delete(ctx, ports.ArtifactPendingEmail); err != nil {
		s.logger.WarnContext(ctx, "clear pending email failed", "error", err)
	}

	s.metrics.RecordCallback(metrics.ResultSuccess, s.clock.Now().Sub(started))
	return resultFromSession(sess), nil
}

// resolveProviderSession extracts token material from the callback payload,
// falling back to the provider's live session when the payload carries none.
func (s *SessionService) resolveProviderSession(ctx context.Context, in CallbackInput) (ports.ProviderSession, error) {
	if in.Code != "" {
		provSess, err := s.provider.Exchange(ctx, ports.ExchangeInput{
			Code:  in.Code,
			State: in.State,
			Nonce: in.Nonce,
		})
		if err != nil {
			return ports.ProviderSession{}, apperrors.Wrap(err, apperrors.ErrCodeCallbackFailed, "exchange callback payload")
		}
		return provSess, nil
	}

	refresh, err := s.tokens.Get(ctx, ports.ArtifactRefreshToken)
	if err != nil && !apperrors.IsNotFound(err) {
		return ports.ProviderSession{}, apperrors.Wrap(err, apperrors.ErrCodeCallbackFailed, "read refresh token")
	}

	provSess, err := s.provider.LiveSession(ctx, refresh)
	if err != nil {
		return ports.ProviderSession{}, apperrors.Wrap(err, apperrors.ErrCodeCallbackFailed, "no live provider session")
	}
	return provSess, nil
}

// commitSession runs the staged write-through under the mutation lock and
// leaves the in-process cache holding the session. A resolution whose
// generation lost to a sign-out is discarded so the teardown stays final.
func (s *SessionService) commitSession(ctx context.Context, sess domainauth.Session, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return errSignedOutMidFlight
	}

	staged, err := stageSession(sess, s.clock)
	if err != nil {
		// Nothing was mutated; still keep the session usable in memory.
		s.cache.Put(sess)
		return err
	}

	commitErr := staged.commit(ctx, s.tokens, s.flags)
	s.cache.Put(sess)
	return commitErr
}

// SessionState is the outcome of CheckSession.
type SessionState struct {
	State   domainauth.State
	Session *domainauth.Session
}

// CheckSession reports the current session, reading the cheapest surface
// first: in-process cache, then the token-store snapshot, then a live
// provider query. Failures degrade to Unauthenticated.
func (s *SessionService) CheckSession(ctx context.Context) (SessionState, error) {
	if sess, ok := s.freshCached(); ok {
		s.metrics.RecordSessionCheck("cache")
		return SessionState{State: domainauth.StateAuthenticated, Session: &sess}, nil
	}

	if sess, ok := s.promoteFromTokenStore(ctx); ok {
		s.metrics.RecordSessionCheck("token_store")
		return SessionState{State: domainauth.StateAuthenticated, Session: &sess}, nil
	}

	result, err := s.CompleteCallback(ctx, CallbackInput{})
	if err != nil {
		if ctx.Err() != nil {
			return SessionState{}, ctx.Err()
		}
		s.logger.InfoContext(ctx, "live session check failed", "error", err)
		s.metrics.RecordSessionCheck("unauthenticated")
		return SessionState{State: domainauth.StateUnauthenticated}, nil
	}

	s.metrics.RecordSessionCheck("live")
	return SessionState{State: domainauth.StateAuthenticated, Session: &result.Session}, nil
}

// promoteFromTokenStore reconstructs the session from the durable artifacts
// and promotes it into the in-process cache when still fresh.
func (s *SessionService) promoteFromTokenStore(ctx context.Context) (domainauth.Session, bool) {
	raw, err := s.tokens.Get(ctx, ports.ArtifactIdentity)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WarnContext(ctx, "read identity artifact failed", "error", err)
		}
		return domainauth.Session{}, false
	}

	var artifact identityArtifact
	if err := json.Unmarshal([]byte(raw), &artifact); err != nil {
		s.logger.WarnContext(ctx, "decode identity artifact failed", "error", err)
		return domainauth.Session{}, false
	}

	sess := domainauth.Session{
		Identity:   artifact.Identity,
		ResolvedAt: artifact.ResolvedAt,
	}
	if !sess.FreshWithin(s.window, s.clock.Now()) {
		return domainauth.Session{}, false
	}

	if access, err := s.tokens.Get(ctx, ports.ArtifactAccessToken); err == nil {
		sess.AccessToken = access
	}
	if refresh, err := s.tokens.Get(ctx, ports.ArtifactRefreshToken); err == nil {
		sess.RefreshToken = refresh
	}
	if rawProfile, err := s.tokens.Get(ctx, ports.ArtifactProfile); err == nil {
		var snap profileSnapshot
		if err := json.Unmarshal([]byte(rawProfile), &snap); err == nil {
			sess.Profile = &snap.Profile
		}
	}

	s.mu.Lock()
	s.cache.Put(sess)
	s.mu.Unlock()

	// Keep the flag surface aligned after a process restart.
	if err := s.flags.Set(ctx, domainauth.Flags{HasSession: true, Role: sess.Role()}); err != nil {
		s.logger.WarnContext(ctx, "refresh flag surface failed", "error", err)
	}

	return sess, true
}

// SignOut tears down every local surface unconditionally and then asks the
// provider to invalidate its session. The provider call comes last so local
// state is never left inconsistent when it fails; a failed remote
// invalidation is logged, never returned.
func (s *SessionService) SignOut(ctx context.Context) error {
	s.sf.Forget(callbackKey)

	s.mu.Lock()
	refresh, refreshErr := s.tokens.Get(ctx, ports.ArtifactRefreshToken)
	if refreshErr != nil {
		refresh = ""
	}

	s.gen++

	var teardownErr error
	s.cache.Clear()
	if err := s.tokens.Clear(ctx); err != nil {
		teardownErr = errors.Join(teardownErr, apperrors.Wrap(err, apperrors.ErrCodeStoreWriteFailed, "clear token store"))
	}
	if err := s.flags.Clear(ctx); err != nil {
		teardownErr = errors.Join(teardownErr, apperrors.Wrap(err, apperrors.ErrCodeStoreWriteFailed, "clear flag surface"))
	}
	s.mu.Unlock()

	if err := s.provider.Invalidate(ctx, refresh); err != nil {
		s.logger.WarnContext(ctx, "provider session invalidation failed", "error", err)
	}

	s.metrics.RecordSignOut()
	return teardownErr
}

// ResolveRedirectTarget decides where the UI should send the user for the
// given profile. Pure function, no I/O; first matching row wins:
//
//	no profile or role unset          → role selection
//	creator with onboarding missing   → creator onboarding
//	creator fully onboarded           → creator home
//	company                           → company home
func ResolveRedirectTarget(profile *domainauth.Profile) domainauth.Route {
	switch {
	case profile == nil || profile.Role == domainauth.RoleUnset:
		return domainauth.RouteRoleSelection
	case profile.Role == domainauth.RoleCreator && profile.Incomplete():
		return domainauth.RouteCreatorOnboarding
	case profile.Role == domainauth.RoleCreator:
		return domainauth.RouteCreatorHome
	default:
		return domainauth.RouteCompanyHome
	}
}

// freshCached returns the cached session when it is inside the freshness
// window.
func (s *SessionService) freshCached() (domainauth.Session, bool) {
	sess, ok := s.cache.Get()
	if !ok || !sess.FreshWithin(s.window, s.clock.Now()) {
		return domainauth.Session{}, false
	}
	return sess, true
}

func resultFromSession(sess domainauth.Session) *CallbackResult {
	return &CallbackResult{
		Identity:           sess.Identity,
		Profile:            sess.Profile,
		RequiresOnboarding: sess.Profile == nil || sess.Profile.Incomplete(),
		Session:            sess,
	}
}
