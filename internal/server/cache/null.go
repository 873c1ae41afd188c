package cache

import (
	"context"
	"time"
)

// Null caches nothing. Claims are still tracked in process so that single
// use guarantees hold without a configured cache.
type Null struct {
	claims *Memory
}

func NewNull() *Null {
	return &Null{claims: NewMemory()}
}

func (n *Null) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (n *Null) Set(context.Context, string, []byte, time.Duration) {}
func (n *Null) Delete(context.Context, ...string)                  {}
func (n *Null) Clear(context.Context)                              {}

func (n *Null) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return n.claims.Claim(ctx, key, ttl)
}

func (n *Null) Release(ctx context.Context, key string) {
	n.claims.Release(ctx, key)
}
