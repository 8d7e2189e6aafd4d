package kvstore

import (
	"context"
	"errors"

	"github.com/2beens/healthtracker/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
)

var _ Store = (*Redis)(nil)

const redisKeyPrefix = "healthtracker||"

type Redis struct {
	redisClient *redis.Client
}

func NewRedis(redisClient *redis.Client) *Redis {
	return &Redis{
		redisClient: redisClient,
	}
}

func (r *Redis) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "kvstore.redis.get")
	defer func() {
		if errors.Is(err, ErrNotFound) {
			span.End()
			return
		}
		tracing.EndSpanWithErrCheck(span, err)
	}()

	value, err := r.redisClient.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "kvstore.redis.set")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.redisClient.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "kvstore.redis.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.redisClient.Del(ctx, redisKeyPrefix+key).Err()
}

// Close leaves the shared redis client open, the server owns it.
func (r *Redis) Close() error {
	return nil
}
