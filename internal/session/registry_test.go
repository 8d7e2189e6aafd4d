package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/2beens/healthtracker/internal/kvstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ProfilesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()
	registry := NewRegistry(backend, PlainHasher{}, time.Hour)

	annProfile, releaseAnn, err := registry.Acquire(ctx, "p-ann")
	require.NoError(t, err)
	defer releaseAnn()
	bobProfile, releaseBob, err := registry.Acquire(ctx, "p-bob")
	require.NoError(t, err)
	defer releaseBob()
	assert.Equal(t, 2, registry.Len())

	_, err = annProfile.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "pw123456", FullName: "Ann"})
	require.NoError(t, err)

	assert.True(t, annProfile.IsAuthenticated())
	assert.False(t, bobProfile.IsAuthenticated())

	// each browser profile has its own catalog
	_, err = bobProfile.Authenticate(ctx, "a@x.com", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = bobProfile.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "other-pw", FullName: "Ann Two"})
	require.NoError(t, err)

	same, releaseSame, err := registry.Acquire(ctx, "p-ann")
	require.NoError(t, err)
	defer releaseSame()
	assert.Same(t, annProfile, same)

	_, err = registry.ProfileStore("p-ann").Get(ctx, CatalogKey)
	require.NoError(t, err)
}

func TestRegistry_ScanAndClean(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	registry := NewRegistry(kvstore.NewMemory(), PlainHasher{}, time.Hour)
	registry.Clock = func() time.Time { return now }

	m, release, err := registry.Acquire(ctx, "p1")
	require.NoError(t, err)
	_, err = m.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "pw123456", FullName: "Ann"})
	require.NoError(t, err)
	release()

	now = now.Add(30 * time.Minute)
	_, release, err = registry.Acquire(ctx, "p2")
	require.NoError(t, err)
	release()

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 1, registry.ScanAndClean())
	assert.Equal(t, 1, registry.Len())

	// a dropped profile comes back with its session restored
	restored, release, err := registry.Acquire(ctx, "p1")
	require.NoError(t, err)
	release()
	assert.NotSame(t, m, restored)
	s, ok := restored.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, "Ann", s.FullName)

	assert.Equal(t, 0, registry.ScanAndClean())
}

func TestRegistry_ScanAndClean_KeepsManagersInUse(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	registry := NewRegistry(kvstore.NewMemory(), PlainHasher{}, time.Hour)
	registry.Clock = func() time.Time { return now }

	held, release, err := registry.Acquire(ctx, "p1")
	require.NoError(t, err)

	// a long running request outlives the idle ttl
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 0, registry.ScanAndClean())
	assert.Equal(t, 1, registry.Len())

	_, err = held.Register(ctx, RegisterRequest{Email: "a@x.com", Password: "pw123456", FullName: "Ann"})
	require.NoError(t, err)

	other, releaseOther, err := registry.Acquire(ctx, "p1")
	require.NoError(t, err)
	assert.Same(t, held, other)
	assert.True(t, other.IsAuthenticated())
	releaseOther()

	release()
	// releasing twice does not make the count go below zero
	release()

	// the idle clock starts again at release
	now = now.Add(30 * time.Minute)
	assert.Equal(t, 0, registry.ScanAndClean())
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, registry.ScanAndClean())
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(kvstore.NewMemory(), PlainHasher{}, time.Hour)

	const workers = 20
	managers := make([]*Manager, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, release, err := registry.Acquire(ctx, "p1")
			if err != nil {
				return
			}
			defer release()
			managers[i] = m
		}(i)
	}
	wg.Wait()

	for _, m := range managers {
		require.NotNil(t, m)
		assert.Same(t, managers[0], m)
	}
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_Errors(t *testing.T) {
	ctx := context.Background()

	registry := NewRegistry(kvstore.NewMemory(), PlainHasher{}, time.Hour)
	_, _, err := registry.Acquire(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	store := newScriptedStore()
	store.setFailing(store.failGet, "profile:p1::"+SessionKey, true)
	registry = NewRegistry(store, PlainHasher{}, time.Hour)
	_, _, err = registry.Acquire(ctx, "p1")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	// failed initialization is not cached
	assert.Equal(t, 0, registry.Len())

	store.setFailing(store.failGet, "profile:p1::"+SessionKey, false)
	_, release, err := registry.Acquire(ctx, "p1")
	require.NoError(t, err)
	release()
	assert.Equal(t, 1, registry.Len())
}
