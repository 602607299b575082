// Package ratelimit throttles inbound per-player message traffic using
// github.com/ulule/limiter/v3, backed by an in-memory store by default or
// a Redis-backed store when the cross-instance bus is configured.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"dradu/server/internal/logging"
)

// Limiter enforces one rate across an arbitrary set of keys (player ids).
type Limiter struct {
	inner *limiter.Limiter
}

// New builds a Limiter from a ulule/limiter formatted rate string, e.g.
// "30-M" for 30 per minute. redisClient may be nil, in which case an
// in-memory store is used.
func New(formattedRate string, redisClient *redis.Client) (*Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: invalid rate %q: %w", formattedRate, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "dradu:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("ratelimit: failed to build redis store: %w", err)
		}
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "rate limiter using in-memory store")
	}

	return &Limiter{inner: limiter.New(store, rate)}, nil
}

// Allow reports whether key (typically a player id) is still within its
// configured rate. A Redis error fails open (allows the message) so a
// degraded bus never blocks gameplay.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.inner == nil {
		return true
	}
	lc, err := l.inner.Get(ctx, key)
	if err != nil {
		logging.Warn(ctx, "ratelimit: store error, failing open")
		return true
	}
	return !lc.Reached
}
