package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
)

const (
	flagsKeySuffix  = "flags"
	fieldHasSession = "hasSession"
	fieldRole       = "role"
)

// FlagSurface stores the middleware-visible flag pair in a Redis hash under
// the same device-scoped prefix as the token store. The hash holds only the
// coarse routing projection; it is never consulted for authorization.
type FlagSurface struct {
	client redis.UniversalClient
	prefix string
}

// NewFlagSurface creates a Redis-backed flag surface.
func NewFlagSurface(client redis.UniversalClient, prefix string) *FlagSurface {
	return &FlagSurface{client: client, prefix: prefix}
}

func (s *FlagSurface) key() string { return s.prefix + flagsKeySuffix }

// Set writes both flags in a single hash write.
func (s *FlagSurface) Set(ctx context.Context, flags domainauth.Flags) error {
	hasSession := "0"
	if flags.HasSession {
		hasSession = "1"
	}

	err := s.client.HSet(ctx, s.key(),
		fieldHasSession, hasSession,
		fieldRole, string(flags.Role),
	).Err()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeStoreWriteFailed, "redis set flags")
	}
	return nil
}

// Read returns the current flags; an absent hash reads as the logical-false state.
func (s *FlagSurface) Read(ctx context.Context) (domainauth.Flags, error) {
	vals, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return domainauth.Flags{}, fmt.Errorf("redis read flags: %w", err)
	}

	return domainauth.Flags{
		HasSession: vals[fieldHasSession] == "1",
		Role:       domainauth.Role(vals[fieldRole]),
	}, nil
}

// Clear resets the surface to its logical-false state.
func (s *FlagSurface) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("redis clear flags: %w", err)
	}
	return nil
}
