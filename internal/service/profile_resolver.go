package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/observability/metrics"
	"github.com/chambahq/identity-core/internal/ports"
)

// profileSnapshot is the envelope persisted under the session.profile
// artifact: the profile plus when it was cached, so the fallback path can
// enforce a maximum snapshot age.
type profileSnapshot struct {
	Profile  domainauth.Profile `json:"profile"`
	CachedAt time.Time          `json:"cached_at"`
}

// ProfileResolverOptions groups dependencies for ProfileResolver.
type ProfileResolverOptions struct {
	Store  ports.ProfileStore
	Tokens ports.TokenStore
	Clock  ports.Clock
	Logger *slog.Logger
	// QueryTimeout bounds the primary remote query.
	QueryTimeout time.Duration
	// FallbackMaxAge bounds how old a cached snapshot may be before the
	// fallback path stops trusting it.
	FallbackMaxAge time.Duration
	Metrics        *metrics.Collector
}

// ProfileResolver resolves a user's profile: the remote store is
// authoritative, and the most recent snapshot in the token store serves as a
// fallback when the remote store is unreachable.
type ProfileResolver struct {
	store          ports.ProfileStore
	tokens         ports.TokenStore
	clock          ports.Clock
	logger         *slog.Logger
	queryTimeout   time.Duration
	fallbackMaxAge time.Duration
	metrics        *metrics.Collector
}

const (
	defaultQueryTimeout = 8 * time.Second
	// A week-old snapshot is stale enough that routing a user through
	// onboarding again beats trusting it.
	defaultFallbackMaxAge = 7 * 24 * time.Hour
)

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(opts ProfileResolverOptions) *ProfileResolver {
	clock := opts.Clock
	if clock == nil {
		clock = ports.ClockFunc(time.Now)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	maxAge := opts.FallbackMaxAge
	if maxAge <= 0 {
		maxAge = defaultFallbackMaxAge
	}
	return &ProfileResolver{
		store:          opts.Store,
		tokens:         opts.Tokens,
		clock:          clock,
		logger:         logger,
		queryTimeout:   timeout,
		fallbackMaxAge: maxAge,
		metrics:        opts.Metrics,
	}
}

// Resolve returns the profile for an identity id. Absence of a profile is a
// valid, expected state for first-time sign-ins and is reported as (nil, nil).
// A ProfileUnavailable error means both the remote store and the cached
// snapshot failed; callers treat it as "no profile" but should log it.
func (r *ProfileResolver) Resolve(ctx context.Context, identityID string) (*domainauth.Profile, error) {
	if identityID == "" {
		return nil, apperrors.Validation("identity id is required")
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	profile, err := r.store.FetchByIdentityID(queryCtx, identityID)
	switch {
	case err == nil:
		r.writeBackSnapshot(ctx, profile)
		return &profile, nil

	case apperrors.IsNotFound(err):
		// First-time sign-in: no profile row yet.
		return nil, nil

	default:
		r.logger.WarnContext(ctx, "primary profile lookup failed, trying cached snapshot",
			"identity_id", identityID, "error", err)
		return r.resolveFromSnapshot(ctx, identityID, err)
	}
}

// resolveFromSnapshot reads the most recent snapshot from the token store,
// honoring the maximum fallback age.
func (r *ProfileResolver) resolveFromSnapshot(ctx context.Context, identityID string, primaryErr error) (*domainauth.Profile, error) {
	raw, err := r.tokens.Get(ctx, ports.ArtifactProfile)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Wrapf(primaryErr, apperrors.ErrCodeProfileUnavailable,
				"profile store unreachable and no cached snapshot for %s", identityID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProfileUnavailable, "read cached profile snapshot")
	}

	var snap profileSnapshot
	if unmarshalErr := json.Unmarshal([]byte(raw), &snap); unmarshalErr != nil {
		return nil, apperrors.Wrap(unmarshalErr, apperrors.ErrCodeProfileUnavailable, "decode cached profile snapshot")
	}

	if snap.Profile.IdentityID != identityID {
		return nil, apperrors.ProfileUnavailable("cached snapshot belongs to a different identity")
	}

	if age := r.clock.Now().Sub(snap.CachedAt); age > r.fallbackMaxAge {
		return nil, apperrors.ProfileUnavailable(
			fmt.Sprintf("cached snapshot is %s old, beyond the %s fallback limit", age.Round(time.Minute), r.fallbackMaxAge))
	}

	r.metrics.RecordProfileFallback()
	r.logger.InfoContext(ctx, "served profile from cached snapshot",
		"identity_id", identityID, "cached_at", snap.CachedAt)
	return &snap.Profile, nil
}

// writeBackSnapshot opportunistically refreshes the fallback snapshot after a
// successful primary resolution. Failures are logged, never surfaced.
func (r *ProfileResolver) writeBackSnapshot(ctx context.Context, profile domainauth.Profile) {
	data, err := json.Marshal(profileSnapshot{Profile: profile, CachedAt: r.clock.Now()})
	if err != nil {
		r.logger.WarnContext(ctx, "marshal profile snapshot failed", "error", err)
		return
	}
	if err := r.tokens.Set(ctx, ports.ArtifactProfile, string(data)); err != nil {
		r.logger.WarnContext(ctx, "write profile snapshot failed", "error", err)
	}
}
