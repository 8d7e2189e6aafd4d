package kvstore

import (
	"context"

	"github.com/2beens/healthtracker/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var _ Store = (*Cached)(nil)

const defaultCacheExpireSeconds = 60 * 10

// Cached is a read-through, write-through cache in front of a remote store.
// It is only coherent while this process is the sole writer of the cached keys.
type Cached struct {
	next          Store
	cache         *freecache.Cache
	expireSeconds int
}

func NewCached(next Store, cacheSizeMB int) *Cached {
	megabyte := 1024 * 1024
	return &Cached{
		next:          next,
		cache:         freecache.NewCache(cacheSizeMB * megabyte),
		expireSeconds: defaultCacheExpireSeconds,
	}
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "kvstore.cached.get")
	defer span.End()

	if value, err := c.cache.Get([]byte(key)); err == nil {
		span.SetAttributes(attribute.Bool("from-cache", true))
		return value, nil
	}
	span.SetAttributes(attribute.Bool("from-cache", false))

	value, err := c.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	c.setCache(key, value)
	return value, nil
}

func (c *Cached) Set(ctx context.Context, key string, value []byte) error {
	if err := c.next.Set(ctx, key, value); err != nil {
		// the remote value is unknown now
		c.cache.Del([]byte(key))
		return err
	}
	c.setCache(key, value)
	return nil
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	c.cache.Del([]byte(key))
	return c.next.Delete(ctx, key)
}

func (c *Cached) Close() error {
	c.cache.Clear()
	return c.next.Close()
}

// EntryCount is the number of entries currently cached.
func (c *Cached) EntryCount() int64 {
	return c.cache.EntryCount()
}

func (c *Cached) setCache(key string, value []byte) {
	if err := c.cache.Set([]byte(key), value, c.expireSeconds); err != nil {
		// value bigger than the cache segment allows, just don't cache it
		log.Debugf("kvstore cache set [%s]: %s", key, err)
		c.cache.Del([]byte(key))
	}
}
