package cache

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/newsindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/resilience"
)

// Guard wraps backend with breaker so an unreachable Redis costs one
// short-circuited call per request instead of a network timeout. A missing
// key is a success for the breaker.
func Guard(backend Backend, breaker *resilience.Breaker) Backend {
	return &guarded{next: backend, breaker: breaker}
}

type guarded struct {
	next    Backend
	breaker *resilience.Breaker
}

func (g *guarded) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	var getErr error
	err := g.breaker.Do(func() error {
		data, getErr = g.next.Get(ctx, key)
		if pkgredis.IsNilError(getErr) {
			return nil
		}
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return data, getErr
}

func (g *guarded) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return g.next.Set(ctx, key, value, ttl)
	})
}

// FlushByPattern bypasses the breaker: invalidation must reach Redis
// whenever it is reachable.
func (g *guarded) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return g.next.FlushByPattern(ctx, pattern)
}
