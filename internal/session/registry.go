package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/healthtracker/internal/kvstore"

	log "github.com/sirupsen/logrus"
)

type registryEntry struct {
	manager  *Manager
	lastUsed time.Time
	// requests holding the manager right now
	inUse int
}

// Registry keeps one Manager per browser profile, all of them on top of the same backend store.
// Managers are initialized on first use and dropped after idleTTL without requests.
// A dropped manager loses nothing, its state is always persisted. A manager that is still
// acquired is never dropped, so a profile has at most one live manager in this process.
type Registry struct {
	mutex    sync.Mutex
	backend  kvstore.Store
	hasher   Hasher
	idleTTL  time.Duration
	managers map[string]*registryEntry

	// ability to inject the clock (for unit testing)
	Clock func() time.Time
}

func NewRegistry(backend kvstore.Store, hasher Hasher, idleTTL time.Duration) *Registry {
	return &Registry{
		backend:  backend,
		hasher:   hasher,
		idleTTL:  idleTTL,
		managers: make(map[string]*registryEntry),
		Clock:    time.Now,
	}
}

// ProfileStore is the durable store of one profile. Features other than the session
// keep their own records here.
func (r *Registry) ProfileStore(profileID string) kvstore.Store {
	return kvstore.NewScoped(r.backend, kvstore.ProfileNamespace(profileID))
}

// Acquire returns the session manager of the profile, restoring its session from storage when
// the profile is seen for the first time (or again after being dropped).
// The manager stays in use until release is called; calling release more than once is fine.
func (r *Registry) Acquire(ctx context.Context, profileID string) (*Manager, func(), error) {
	if profileID == "" {
		return nil, nil, fmt.Errorf("%w: empty profile id", ErrInvalidRequest)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, ok := r.managers[profileID]
	if !ok {
		manager := NewManager(r.ProfileStore(profileID), r.hasher)
		if err := manager.Initialize(ctx); err != nil {
			return nil, nil, err
		}
		entry = &registryEntry{manager: manager}
		r.managers[profileID] = entry
	}

	entry.inUse++
	entry.lastUsed = r.Clock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mutex.Lock()
			defer r.mutex.Unlock()
			entry.inUse--
			entry.lastUsed = r.Clock()
		})
	}
	return entry.manager, release, nil
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.managers)
}

// ScanAndClean drops the managers idle for longer than the TTL and returns how many were dropped.
// Managers still in use are kept whatever their age.
func (r *Registry) ScanAndClean() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.Clock()
	removed := 0
	for profileID, entry := range r.managers {
		if entry.inUse == 0 && now.Sub(entry.lastUsed) > r.idleTTL {
			delete(r.managers, profileID)
			removed++
		}
	}

	if removed > 0 {
		log.Debugf("=> session registry, scan and clean: dropped %d idle profiles, %d left", removed, len(r.managers))
	}
	return removed
}
