package kvstore

import (
	"context"
	"fmt"
)

var _ Store = (*Scoped)(nil)

// Scoped confines all keys to one namespace (a browser profile), so that a single
// backend can hold the records of many profiles without them seeing each other.
type Scoped struct {
	next      Store
	namespace string
}

func NewScoped(next Store, namespace string) *Scoped {
	return &Scoped{
		next:      next,
		namespace: namespace,
	}
}

func ProfileNamespace(profileID string) string {
	return fmt.Sprintf("profile:%s", profileID)
}

func (s *Scoped) key(key string) string {
	return s.namespace + "::" + key
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.next.Get(ctx, s.key(key))
}

func (s *Scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.next.Set(ctx, s.key(key), value)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, s.key(key))
}

// Close is a no-op, the underlying store is shared between scopes.
func (s *Scoped) Close() error {
	return nil
}
