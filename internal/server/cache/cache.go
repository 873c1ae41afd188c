// Package cache is a small key/value cache with the error handling built in:
// read failures are misses and write failures are logged, so callers never
// have to care whether a cache is configured or reachable.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/logging"
	"github.com/go-redis/redis/v8"
)

// ClearSafeSuffix marks keys that Clear leaves alone.
const ClearSafeSuffix = "_clear_safe"

type Client interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	// Clear drops every key except those ending in ClearSafeSuffix.
	Clear(ctx context.Context)
	// Claim atomically marks key as taken for ttl and reports whether this
	// call was the one that took it. Claimed keys survive Clear.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives up a claim so the key can be claimed again.
	Release(ctx context.Context, key string)
}

type Options struct {
	Type    string // null, memory or redis
	Host    string
	Port    string
	DB      int
	Secret  string
	Timeout time.Duration
}

// New builds the Client selected by opts.Type. An unknown type is an error.
func New(opts Options, logger logging.Logger) (Client, error) {
	switch opts.Type {
	case "", "null":
		return NewNull(), nil
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", opts.Host, opts.Port),
			Password: opts.Secret,
			DB:       opts.DB,
		}, opts.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", opts.Type)
	}
}
