// Package kvstore holds the durable key-value substrate that the session manager and the
// dashboard features persist their records into. It plays the role browser local storage
// plays for a single-page app: flat string keys, opaque (JSON) values.
package kvstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Store is a durable key-value store.
// Delete of a missing key is not an error. Close releases only resources the store owns;
// stores built on top of a shared client (redis, postgres pool) leave the client open.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
