//go:build integration

package test

import (
	"context"

	"github.com/2beens/healthtracker/internal/kvstore"
	"github.com/2beens/healthtracker/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestRedisStore() {
	t := s.T()
	ctx := context.Background()

	store := kvstore.NewRedis(s.redisClient)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte("v1")))
	require.NoError(t, store.Set(ctx, "k", []byte("v2")))
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(value))

	raw, err := s.redisClient.Get(ctx, "healthtracker||k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v2", raw)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "k"))
}

func (s *IntegrationTestSuite) TestRedisStore_SessionSurvivesRestart() {
	t := s.T()
	ctx := context.Background()

	store := kvstore.NewScoped(kvstore.NewRedis(s.redisClient), kvstore.ProfileNamespace("restart-test"))
	hasher := session.NewBcryptHasher(4)

	manager := session.NewManager(store, hasher)
	require.NoError(t, manager.Initialize(ctx))
	_, err := manager.Register(ctx, session.RegisterRequest{
		Email:    "bob@example.com",
		Password: "Secret123!",
		FullName: "Bob",
	})
	require.NoError(t, err)

	// a fresh manager over the same store restores the session
	restarted := session.NewManager(store, hasher)
	require.NoError(t, restarted.Initialize(ctx))
	current, ok := restarted.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", current.Email)
	assert.Equal(t, "Bob", current.FullName)

	require.NoError(t, restarted.SignOut(ctx))

	again := session.NewManager(store, hasher)
	require.NoError(t, again.Initialize(ctx))
	assert.False(t, again.IsAuthenticated())

	_, err = again.Authenticate(ctx, "bob@example.com", "Secret123!")
	require.NoError(t, err)
	assert.True(t, again.IsAuthenticated())
}
