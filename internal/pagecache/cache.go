package pagecache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL = time.Hour

	// DefaultLoadTimeout bounds a shared miss once no single caller's context governs it.
	DefaultLoadTimeout = 30 * time.Second

	shardCount = 64
)

// Backend is the storage behind a Cache.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Loader produces the value for a missing key from the durable store.
type Loader[V any] func(ctx context.Context) (V, error)

// Stats counts cache activity since start.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	DroppedFills  int64 `json:"dropped_fills"`
	Degraded      int64 `json:"degraded"`
}

// shard orders fills against invalidations for the users hashed to it.
type shard struct {
	mu    sync.Mutex
	epoch uint64
}

func (s *shard) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Cache is a read-through cache of JSON-encoded values keyed by user and page.
type Cache[V any] struct {
	backend     Backend
	ttl         time.Duration
	loadTimeout time.Duration
	log         *slog.Logger

	group  singleflight.Group
	shards [shardCount]shard

	hits, misses, invalidations, dropped, degraded atomic.Int64
}

func New[V any](backend Backend, ttl time.Duration, log *slog.Logger) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache[V]{backend: backend, ttl: ttl, loadTimeout: DefaultLoadTimeout, log: log}
}

// Get returns the cached value for key, or calls load and caches its result.
// hit reports whether the value came from the cache. Backend read failures are
// treated as misses. Concurrent misses share one load; a caller whose ctx ends
// stops waiting without failing the others.
func (c *Cache[V]) Get(ctx context.Context, key Key, load Loader[V]) (v V, hit bool, err error) {
	k := key.String()
	if v, ok := c.lookup(ctx, k); ok {
		c.hits.Add(1)
		return v, true, nil
	}
	c.misses.Add(1)

	sh := c.shardFor(key.UserID)
	epoch := sh.current()

	ch := c.group.DoChan(fmt.Sprintf("%s#%d", k, epoch), func() (any, error) {
		// outlives the caller that started it, other callers may have joined
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.fill(loadCtx, sh, epoch, k, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

// InvalidateUser removes every cached page of userID. Fills that started
// before the call are not stored afterwards.
func (c *Cache[V]) InvalidateUser(ctx context.Context, userID string) error {
	sh := c.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.epoch++
	prefix := UserPrefix(userID)
	n, err := c.backend.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", prefix, err)
	}

	c.invalidations.Add(1)
	c.log.Debug("cache invalidated", "user_id", userID, "keys", n)
	return nil
}

func (c *Cache[V]) lookup(ctx context.Context, key string) (V, bool) {
	var v V
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.degraded.Add(1)
		c.log.Warn("cache read failed, loading from store", "key", key, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.degraded.Add(1)
		c.log.Warn("corrupt cache entry, loading from store", "key", key, "error", err)
		var zero V
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) fill(ctx context.Context, sh *shard, epoch uint64, key string, v V) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode cache entry", "key", key, "error", err)
		return
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// an invalidation ran while we were loading
	if sh.epoch != epoch {
		c.dropped.Add(1)
		c.log.Debug("dropping stale cache fill", "key", key)
		return
	}
	if err := c.backend.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *Cache[V]) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &c.shards[h.Sum32()%shardCount]
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		DroppedFills:  c.dropped.Load(),
		Degraded:      c.degraded.Load(),
	}
}

func (c *Cache[V]) State() any {
	return c.Stats()
}

func (c *Cache[V]) ComponentType() string {
	return "page_cache"
}

var _ introspection.Introspectable = (*Cache[int])(nil)
var _ introspection.Component = (*Cache[int])(nil)
