package service

import (
	"context"
	"encoding/json"
	"time"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/ports"
)

// identityArtifact is the envelope persisted under session.identity: the
// identity plus the time of the last full resolution, so a token-store
// snapshot can be freshness-checked after a process restart.
type identityArtifact struct {
	Identity   domainauth.Identity `json:"identity"`
	ResolvedAt time.Time           `json:"resolved_at"`
}

// stagedWrite is a fully serialized write-through: every value is marshaled
// up front so nothing mutates any surface until staging has succeeded.
type stagedWrite struct {
	session   domainauth.Session
	artifacts map[string]string
	flags     domainauth.Flags
}

// stageSession serializes the session into the artifact set. Errors here mean
// no surface has been touched.
func stageSession(sess domainauth.Session, clock ports.Clock) (*stagedWrite, error) {
	identityJSON, err := json.Marshal(identityArtifact{
		Identity:   sess.Identity,
		ResolvedAt: sess.ResolvedAt,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal identity artifact")
	}

	artifacts := map[string]string{
		ports.ArtifactAccessToken:  sess.AccessToken,
		ports.ArtifactRefreshToken: sess.RefreshToken,
		ports.ArtifactIdentity:     string(identityJSON),
	}

	if sess.Profile != nil {
		profileJSON, err := json.Marshal(profileSnapshot{
			Profile:  *sess.Profile,
			CachedAt: clock.Now(),
		})
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal profile snapshot")
		}
		artifacts[ports.ArtifactProfile] = string(profileJSON)
	}

	return &stagedWrite{
		session:   sess,
		artifacts: artifacts,
		flags:     domainauth.Flags{HasSession: true, Role: sess.Role()},
	}, nil
}

// commit applies the staged write to the durable surfaces. If any write
// fails, the artifacts written so far are rolled back so the token store and
// flag surface are never observed half-updated; the caller decides whether to
// keep the session in the in-process cache only.
func (w *stagedWrite) commit(ctx context.Context, tokens ports.TokenStore, flags ports.FlagSurface) error {
	written := make([]string, 0, len(w.artifacts))
	for name, value := range w.artifacts {
		if err := tokens.Set(ctx, name, value); err != nil {
			w.rollback(ctx, tokens, written)
			return apperrors.Wrapf(err, apperrors.ErrCodeStoreWriteFailed, "write artifact %s", name)
		}
		written = append(written, name)
	}

	if err := flags.Set(ctx, w.flags); err != nil {
		w.rollback(ctx, tokens, written)
		return apperrors.Wrap(err, apperrors.ErrCodeStoreWriteFailed, "write flag surface")
	}

	return nil
}

// rollback best-effort deletes the artifacts written during a failed commit.
func (w *stagedWrite) rollback(ctx context.Context, tokens ports.TokenStore, written []string) {
	for _, name := range written {
		// Rollback is best effort; the original write error is what matters.
		_ = tokens.Delete(ctx, name)
	}
}
