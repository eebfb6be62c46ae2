package blacklist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certguard/certguard/internal/blacklist"
)

var ctx = context.Background()

func TestMemoryStore_addAndCheck(t *testing.T) {
	s := blacklist.NewMemoryStore()

	e, err := s.Add(ctx, "  Fake University ", "")
	require.NoError(t, err)
	assert.Equal(t, "Fake University", e.EntityID)
	assert.Equal(t, blacklist.DefaultReason, e.Reason)
	assert.Equal(t, blacklist.StatusActive, e.Status)

	ok, err := s.IsBlacklisted(ctx, "Fake University")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.IsBlacklisted(ctx, "IIT Delhi")
	assert.False(t, ok)
}

func TestMemoryStore_duplicateActive(t *testing.T) {
	s := blacklist.NewMemoryStore()
	_, err := s.Add(ctx, "X", "fraud")
	require.NoError(t, err)

	_, err = s.Add(ctx, "X", "again")
	assert.ErrorIs(t, err, blacklist.ErrAlreadyBlacklisted)
	assert.EqualError(t, err, "entity is already blacklisted")
}

func TestMemoryStore_revokeThenReAdd(t *testing.T) {
	s := blacklist.NewMemoryStore()
	_, _ = s.Add(ctx, "X", "fraud")

	require.NoError(t, s.Revoke(ctx, "X"))
	ok, _ := s.IsBlacklisted(ctx, "X")
	assert.False(t, ok)
	assert.ErrorIs(t, s.Revoke(ctx, "X"), blacklist.ErrNotBlacklisted)

	_, err := s.Add(ctx, "X", "fraud again")
	require.NoError(t, err)

	all, _ := s.List(ctx, "")
	require.Len(t, all, 2)
	assert.Equal(t, "fraud again", all[0].Reason, "newest first")
	assert.Equal(t, blacklist.StatusRevoked, all[1].Status)
	assert.NotNil(t, all[1].RevokedAt)

	active, _ := s.List(ctx, blacklist.StatusActive)
	assert.Len(t, active, 1)
}

func TestMemoryStore_emptyEntity(t *testing.T) {
	_, err := blacklist.NewMemoryStore().Add(ctx, "   ", "x")
	assert.ErrorIs(t, err, blacklist.ErrInvalidEntity)
}
