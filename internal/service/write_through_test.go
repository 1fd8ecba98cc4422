package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
	mocks "github.com/chambahq/identity-core/internal/mocks/auth"
	"github.com/chambahq/identity-core/internal/ports"
)

func sampleSession(clock ports.Clock) domainauth.Session {
	return domainauth.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Identity: domainauth.Identity{
			ID:    "identity-1",
			Email: "dana@example.com",
		},
		Profile: &domainauth.Profile{
			IdentityID: "identity-1",
			Role:       domainauth.RoleCompany,
		},
		ResolvedAt: clock.Now(),
	}
}

func TestStageSession_ProducesAllArtifacts(t *testing.T) {
	clock := newFakeClock()
	staged, err := stageSession(sampleSession(clock), clock)
	require.NoError(t, err)

	assert.Len(t, staged.artifacts, 4)
	assert.Equal(t, "access-1", staged.artifacts[ports.ArtifactAccessToken])
	assert.Equal(t, "refresh-1", staged.artifacts[ports.ArtifactRefreshToken])

	var artifact identityArtifact
	require.NoError(t, json.Unmarshal([]byte(staged.artifacts[ports.ArtifactIdentity]), &artifact))
	assert.Equal(t, "identity-1", artifact.Identity.ID)
	assert.Equal(t, clock.Now(), artifact.ResolvedAt)

	assert.True(t, staged.flags.HasSession)
	assert.Equal(t, domainauth.RoleCompany, staged.flags.Role)
}

func TestStageSession_NoProfileSkipsSnapshot(t *testing.T) {
	clock := newFakeClock()
	sess := sampleSession(clock)
	sess.Profile = nil

	staged, err := stageSession(sess, clock)
	require.NoError(t, err)
	_, ok := staged.artifacts[ports.ArtifactProfile]
	assert.False(t, ok)
	assert.Equal(t, domainauth.RoleUnset, staged.flags.Role)
}

func TestCommit_WritesTokenStoreThenFlags(t *testing.T) {
	clock := newFakeClock()
	tokens := mocks.NewMemoryTokenStore()
	flags := &mocks.MemoryFlagSurface{}

	staged, err := stageSession(sampleSession(clock), clock)
	require.NoError(t, err)
	require.NoError(t, staged.commit(context.Background(), tokens, flags))

	assert.Equal(t, 4, tokens.Len())
	got, err := flags.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, got.HasSession)
}

func TestCommit_TokenWriteFailureRollsBack(t *testing.T) {
	clock := newFakeClock()
	tokens := mocks.NewMemoryTokenStore()
	tokens.FailWrites = true
	flags := &mocks.MemoryFlagSurface{}

	staged, err := stageSession(sampleSession(clock), clock)
	require.NoError(t, err)

	err = staged.commit(context.Background(), tokens, flags)
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreWriteFailed(err))
	assert.Equal(t, 0, tokens.Len())

	got, _ := flags.Read(context.Background())
	assert.False(t, got.HasSession)
}

func TestCommit_FlagWriteFailureRollsBackArtifacts(t *testing.T) {
	clock := newFakeClock()
	tokens := mocks.NewMemoryTokenStore()
	flags := &mocks.MemoryFlagSurface{FailWrites: true}

	staged, err := stageSession(sampleSession(clock), clock)
	require.NoError(t, err)

	err = staged.commit(context.Background(), tokens, flags)
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreWriteFailed(err))
	// The partially written artifacts were removed again.
	assert.Equal(t, 0, tokens.Len())
}

func TestSessionCache_WindowExpiry(t *testing.T) {
	cache := newSessionCache(50 * time.Millisecond)
	cache.Put(domainauth.Session{AccessToken: "access-1"})

	got, ok := cache.Get()
	require.True(t, ok)
	assert.Equal(t, "access-1", got.AccessToken)

	time.Sleep(80 * time.Millisecond)
	_, ok = cache.Get()
	assert.False(t, ok)
}

func TestSessionCache_Clear(t *testing.T) {
	cache := newSessionCache(time.Minute)
	cache.Put(domainauth.Session{AccessToken: "access-1"})
	cache.Clear()
	_, ok := cache.Get()
	assert.False(t, ok)
}
