package redis

// Package redis provides Redis-based adapters for the session core.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/chambahq/identity-core/internal/errors"
	"github.com/chambahq/identity-core/internal/ports"
)

// artifactNames lists every key the core writes; Clear removes exactly these.
var artifactNames = []string{
	ports.ArtifactAccessToken,
	ports.ArtifactRefreshToken,
	ports.ArtifactIdentity,
	ports.ArtifactProfile,
	ports.ArtifactPendingEmail,
}

// TokenStore is a Redis-backed token store holding named session artifacts
// under a device-scoped key prefix. Artifacts survive process restarts; an
// optional TTL bounds how long an abandoned device keeps its artifacts.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// TokenStoreOptions groups construction parameters for TokenStore.
type TokenStoreOptions struct {
	// Prefix scopes all keys, typically "device:<id>:".
	Prefix string
	// TTL applies to every artifact write; zero means no expiry.
	TTL time.Duration
}

// NewTokenStore creates a Redis-backed token store.
func NewTokenStore(client redis.UniversalClient, opts TokenStoreOptions) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
	}
}

func (s *TokenStore) key(name string) string { return s.prefix + name }

// Get returns the named artifact, or a NotFound error when absent.
func (s *TokenStore) Get(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", apperrors.Validation("artifact name cannot be empty")
	}

	val, err := s.client.Get(ctx, s.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.NotFoundf("artifact %q not found", name)
		}
		return "", fmt.Errorf("redis get %s: %w", name, err)
	}
	return val, nil
}

// Set writes the named artifact.
func (s *TokenStore) Set(ctx context.Context, name, value string) error {
	if name == "" {
		return apperrors.Validation("artifact name cannot be empty")
	}

	if err := s.client.Set(ctx, s.key(name), value, s.ttl).Err(); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeStoreWriteFailed, "redis set %s", name)
	}
	return nil
}

// Delete removes the named artifact. Deleting an absent artifact is not an error.
func (s *TokenStore) Delete(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", name, err)
	}
	return nil
}

// Clear removes every named artifact the core writes.
func (s *TokenStore) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(artifactNames))
	for _, name := range artifactNames {
		keys = append(keys, s.key(name))
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear artifacts: %w", err)
	}
	return nil
}
