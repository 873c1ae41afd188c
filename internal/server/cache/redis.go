package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "ecomauth:"

// Redis is a Client backed by a Redis server. Every key is namespaced with
// keyPrefix so Clear only touches our own keys.
type Redis struct {
	client *redis.Client
	// defaultTTL applies when Set is called with ttl 0.
	defaultTTL time.Duration
	logger     logging.Logger
}

func NewRedis(opts *redis.Options, defaultTTL time.Duration, logger logging.Logger) *Redis {
	return &Redis{client: redis.NewClient(opts), defaultTTL: defaultTTL, logger: logger}
}

// Ping reports whether the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Error(ctx, "not able to get value from cache", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		r.logger.Error(ctx, "not able to set value in cache", "key", key, "error", err)
		return
	}
	r.logger.Debug(ctx, "cache set", "key", key)
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = keyPrefix + k
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		r.logger.Error(ctx, "not able to delete from cache", "keys", keys, "error", err)
	}
}

func (r *Redis) Clear(ctx context.Context) {
	var doomed []string

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if k := iter.Val(); !strings.HasSuffix(k, ClearSafeSuffix) {
			doomed = append(doomed, k)
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Error(ctx, "not able to clear cache", "error", err)
		return
	}

	if len(doomed) > 0 {
		if err := r.client.Del(ctx, doomed...).Err(); err != nil {
			r.logger.Error(ctx, "not able to clear cache", "error", err)
			return
		}
	}
	r.logger.Info(ctx, "cache cleared", "keys", len(doomed))
}

// Claim uses SETNX, so concurrent claims from several server instances race
// safely. Unlike the other methods it reports store errors.
func (r *Redis) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+key+ClearSafeSuffix, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Redis) Release(ctx context.Context, key string) {
	if err := r.client.Del(ctx, keyPrefix+key+ClearSafeSuffix).Err(); err != nil {
		r.logger.Error(ctx, "not able to release claim", "key", key, "error", err)
	}
}
