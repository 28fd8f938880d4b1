package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/vaheed/fresco/internal/logging"
	"github.com/vaheed/fresco/internal/metrics"
	"go.uber.org/zap"
)

const keyPrefix = "fresco:recs:"

// Recommendations caches computed recommendation lists per (user, size) so
// bursts of identical requests skip the scoring pipeline. When no Redis
// address is configured it operates in no-op mode: every lookup misses and
// writes are discarded.
type Recommendations struct {
	rdb  *redis.Client
	ttl  time.Duration
	noop bool
}

// NewRecommendations builds the cache. addr empty means no-op mode.
func NewRecommendations(addr string, ttl time.Duration) *Recommendations {
	if addr == "" {
		return &Recommendations{noop: true}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Recommendations{rdb: redis.NewClient(&redis.Options{Addr: addr}), ttl: ttl}
}

// Get returns the cached list for (user, size) and whether it was present.
func (c *Recommendations) Get(ctx context.Context, user string, size int) ([]string, bool) {
	if c.noop {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	raw, err := c.rdb.HGet(ctx, keyPrefix+user, strconv.Itoa(size)).Bytes()
	if err != nil {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	var recs []string
	if err := json.Unmarshal(raw, &recs); err != nil {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return recs, true
}

// Set stores the list for (user, size). Failures are logged and ignored; the
// cache is an optimization, never a source of truth.
func (c *Recommendations) Set(ctx context.Context, user string, size int, recs []string) {
	if c.noop {
		return
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	key := keyPrefix + user
	if err := c.rdb.HSet(ctx, key, strconv.Itoa(size), raw).Err(); err != nil {
		logging.L.Debug("cache set failed", zap.String("user", user), zap.Error(err))
		return
	}
	_ = c.rdb.Expire(ctx, key, c.ttl).Err()
}

// Invalidate drops all cached sizes for a user. Called when the user's
// inventory changes, since ownership feeds the filters.
func (c *Recommendations) Invalidate(ctx context.Context, user string) {
	if c.noop {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rdb.Del(ctx, keyPrefix+user).Err(); err != nil {
		logging.L.Debug("cache invalidate failed", zap.String("user", user), zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *Recommendations) Close() error {
	if c.noop {
		return nil
	}
	return c.rdb.Close()
}
