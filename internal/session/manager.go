// Package session owns the catalog of registered local accounts and the active session
// of one browser profile, both persisted to a durable key-value store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/2beens/healthtracker/internal/kvstore"

	"go.uber.org/multierr"
)

// Manager is the only writer of the catalog and session records of its store.
// Every mutation persists before it touches the in-memory state, so a storage failure
// leaves the manager exactly as it was. The mutex serialises operations within this process;
// two processes writing the same profile can still race, the last writer wins.
type Manager struct {
	mutex         sync.Mutex
	store         kvstore.Store
	hasher        Hasher
	activeSession *Session

	// ability to inject the clock stamping createdAt (for unit testing)
	Clock func() time.Time
}

func NewManager(store kvstore.Store, hasher Hasher) *Manager {
	return &Manager{
		store:  store,
		hasher: hasher,
		Clock:  time.Now,
	}
}

// Initialize restores the active session from the store. A missing record is the normal anonymous state.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	raw, err := m.store.Get(ctx, SessionKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			m.activeSession = nil
			return nil
		}
		return storageErr("read session", err)
	}

	restored, err := decodeSession(raw)
	if err != nil {
		return storageErr("decode session", err)
	}

	m.activeSession = &restored
	return nil
}

// Register adds a new account to the catalog and signs it in.
// Field validation is up to the caller, see RegisterRequest.Validate.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	catalog, prevCatalog, err := m.loadCatalogRaw(ctx)
	if err != nil {
		return Session{}, err
	}

	if _, exists := catalog[req.Email]; exists {
		return Session{}, ErrDuplicateAccount
	}

	credential, err := m.hasher.Hash(req.Password)
	if err != nil {
		return Session{}, err
	}

	account := Account{
		Email:             req.Email,
		Credential:        credential,
		CredentialScheme:  m.hasher.Scheme(),
		FullName:          req.FullName,
		ProfilePictureRef: normalizeRef(req.ProfilePictureRef),
		CurrentWeight:     0,
		DailyCalorieGoal:  DefaultDailyCalorieGoal,
		DailyWaterGoal:    DefaultDailyWaterGoal,
		FitnessLevel:      FitnessLevelBeginner,
		CreatedAt:         m.now(),
	}
	catalog[account.Email] = account

	return m.saveAndSignIn(ctx, catalog, prevCatalog, account)
}

// Authenticate signs in the account with the given email if the secret matches.
// Unknown emails and wrong secrets fail the same way and leave the current session in place.
func (m *Manager) Authenticate(ctx context.Context, email, secret string) (Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	catalog, err := m.loadCatalog(ctx)
	if err != nil {
		return Session{}, err
	}

	account, ok := catalog[email]
	if !ok {
		return Session{}, ErrInvalidCredentials
	}

	verifier, err := m.verifierFor(account.CredentialScheme)
	if err != nil {
		return Session{}, storageErr("account "+email, err)
	}
	if !verifier.Matches(secret, account.Credential) {
		return Session{}, ErrInvalidCredentials
	}

	if account.CredentialScheme != m.hasher.Scheme() {
		// the secret is known now, store it under the configured scheme
		credential, err := m.hasher.Hash(secret)
		if err != nil {
			return Session{}, err
		}
		account.Credential = credential
		account.CredentialScheme = m.hasher.Scheme()
		catalog[email] = account
		if err := m.saveCatalog(ctx, catalog); err != nil {
			return Session{}, err
		}
	}

	return m.signIn(ctx, account)
}

// SignOut removes the session record. Signing out without a session is a no-op success.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.store.Delete(ctx, SessionKey); err != nil {
		return storageErr("delete session", err)
	}

	m.activeSession = nil
	return nil
}

// UpdateProfile changes the mutable fields of the signed in account and refreshes the session.
func (m *Manager) UpdateProfile(ctx context.Context, update ProfileUpdate) (Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.activeSession == nil {
		return Session{}, ErrNotAuthenticated
	}

	catalog, prevCatalog, err := m.loadCatalogRaw(ctx)
	if err != nil {
		return Session{}, err
	}

	account, ok := catalog[m.activeSession.Email]
	if !ok {
		return Session{}, ErrNotAuthenticated
	}

	update.apply(&account)
	catalog[account.Email] = account

	return m.saveAndSignIn(ctx, catalog, prevCatalog, account)
}

// CurrentSession returns a copy of the active session, no I/O.
func (m *Manager) CurrentSession() (Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.activeSession == nil {
		return Session{}, false
	}

	current := *m.activeSession
	current.ProfilePictureRef = copyStringPtr(current.ProfilePictureRef)
	return current, true
}

func (m *Manager) IsAuthenticated() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.activeSession != nil
}

// signIn persists the session derived from account, then makes it active.
func (m *Manager) signIn(ctx context.Context, account Account) (Session, error) {
	s := account.Session()
	raw, err := encodeSession(s)
	if err != nil {
		return Session{}, storageErr("encode session", err)
	}
	if err := m.store.Set(ctx, SessionKey, raw); err != nil {
		return Session{}, storageErr("write session", err)
	}

	active := s
	m.activeSession = &active
	return s, nil
}

func (m *Manager) loadCatalog(ctx context.Context) (map[string]Account, error) {
	catalog, _, err := m.loadCatalogRaw(ctx)
	return catalog, err
}

// loadCatalogRaw also returns the stored bytes, nil when there is no catalog record yet.
func (m *Manager) loadCatalogRaw(ctx context.Context) (map[string]Account, []byte, error) {
	raw, err := m.store.Get(ctx, CatalogKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return make(map[string]Account), nil, nil
		}
		return nil, nil, storageErr("read catalog", err)
	}

	catalog, err := decodeCatalog(raw)
	if err != nil {
		return nil, nil, storageErr("decode catalog", err)
	}
	return catalog, raw, nil
}

// saveAndSignIn writes the catalog and then the session of account. When the session
// write fails the catalog record is put back to prevCatalog, so the operation fails as a whole.
func (m *Manager) saveAndSignIn(ctx context.Context, catalog map[string]Account, prevCatalog []byte, account Account) (Session, error) {
	if err := m.saveCatalog(ctx, catalog); err != nil {
		return Session{}, err
	}

	s, err := m.signIn(ctx, account)
	if err != nil {
		if rollbackErr := m.restoreCatalog(ctx, prevCatalog); rollbackErr != nil {
			return Session{}, multierr.Combine(err, rollbackErr)
		}
		return Session{}, err
	}
	return s, nil
}

func (m *Manager) restoreCatalog(ctx context.Context, prev []byte) error {
	if prev == nil {
		if err := m.store.Delete(ctx, CatalogKey); err != nil {
			return storageErr("roll back catalog", err)
		}
		return nil
	}
	if err := m.store.Set(ctx, CatalogKey, prev); err != nil {
		return storageErr("roll back catalog", err)
	}
	return nil
}

func (m *Manager) saveCatalog(ctx context.Context, catalog map[string]Account) error {
	raw, err := encodeCatalog(catalog)
	if err != nil {
		return storageErr("encode catalog", err)
	}
	if err := m.store.Set(ctx, CatalogKey, raw); err != nil {
		return storageErr("write catalog", err)
	}
	return nil
}

func (m *Manager) verifierFor(scheme string) (Hasher, error) {
	if scheme == m.hasher.Scheme() {
		return m.hasher, nil
	}
	return NewHasher(scheme, 0)
}

func (m *Manager) now() time.Time {
	return m.Clock().UTC().Truncate(time.Millisecond)
}

func normalizeRef(ref *string) *string {
	if ref == nil || *ref == "" {
		return nil
	}
	return copyStringPtr(ref)
}
