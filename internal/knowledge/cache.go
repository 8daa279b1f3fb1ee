package knowledge

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Cache defaults.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 1000
)

// cacheEntry holds the ranked matches computed for one query.
type cacheEntry struct {
	value     []PatternMatch
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// resultCache is a lock-guarded map of query key to ranked matches.
//
// Entries expire logically; nothing sweeps them in the background. Eviction
// happens only on insert at capacity: expired entries go first, then the
// single oldest entry. A panic inside a critical section marks the cache
// degraded, after which every operation behaves as a miss until Clear.
type resultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	degraded atomic.Bool
	metrics  *Metrics
	logger   *zap.Logger
}

func newResultCache(ttl time.Duration, maxEntries int, now func() time.Time, logger *zap.Logger) *resultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resultCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		logger:     logger,
	}
}

// locked runs fn under the cache lock. It reports false when the cache is
// degraded or fn panicked.
func (c *resultCache) locked(fn func()) (ok bool) {
	if c.degraded.Load() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.degraded.Store(true)
			c.entries = make(map[string]*cacheEntry)
			c.logger.Warn("knowledge cache degraded, falling back to recompute",
				zap.Any("panic", r))
			ok = false
		}
	}()

	fn()
	return true
}

// get returns a copy of the cached matches for key if present and fresh.
func (c *resultCache) get(key string) ([]PatternMatch, bool) {
	var (
		value []PatternMatch
		found bool
	)
	c.locked(func() {
		entry, exists := c.entries[key]
		if !exists || entry.expired(c.now()) {
			return
		}
		value = make([]PatternMatch, len(entry.value))
		copy(value, entry.value)
		found = true
	})

	if c.metrics != nil {
		if found {
			c.metrics.RecordCacheHit()
		} else {
			c.metrics.RecordCacheMiss()
		}
	}
	return value, found
}

// set stores value under key, evicting first if the cache is full.
func (c *resultCache) set(key string, value []PatternMatch) {
	var expired, oldest, size int
	c.locked(func() {
		now := c.now()
		if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
			expired, oldest = c.evict(now)
		}
		c.entries[key] = &cacheEntry{value: value, createdAt: now, ttl: c.ttl}
		size = len(c.entries)
	})

	if expired+oldest > 0 {
		c.logger.Debug("knowledge cache eviction",
			zap.Int("expired", expired),
			zap.Int("oldest", oldest))
	}
	if c.metrics != nil {
		c.metrics.RecordEvictions("expired", expired)
		c.metrics.RecordEvictions("oldest", oldest)
		c.metrics.SetCacheSize(size)
	}
}

// evict removes every expired entry, then the oldest entry if still full.
// Caller must hold the lock.
func (c *resultCache) evict(now time.Time) (expired, oldest int) {
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			expired++
		}
	}
	if len(c.entries) < c.maxEntries {
		return expired, 0
	}

	var (
		oldestKey  string
		oldestTime time.Time
		first      = true
	)
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey, oldestTime, first = k, e.createdAt, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		oldest = 1
	}
	return expired, oldest
}

// clear drops all entries and lifts the degraded state.
func (c *resultCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
	c.degraded.Store(false)

	if c.metrics != nil {
		c.metrics.SetCacheSize(0)
	}
}

// stats reports total and non-expired entries; (0,0) when degraded.
func (c *resultCache) stats() CacheStats {
	var s CacheStats
	c.locked(func() {
		now := c.now()
		s.Total = len(c.entries)
		for _, e := range c.entries {
			if !e.expired(now) {
				s.Valid++
			}
		}
	})
	return s
}

// cacheKey hashes the query fields in their given order. List lengths are
// mixed in so that field boundaries cannot alias.
func cacheKey(q Query) string {
	d := xxhash.New()
	writeField := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	writeList := func(items []string) {
		writeField(strconv.Itoa(len(items)))
		for _, item := range items {
			writeField(item)
		}
	}

	writeField(q.Text)
	writeList(q.ErrorCodes)
	writeList(q.Tags)
	writeField(q.FilePath)
	return fmt.Sprintf("kq_%x", d.Sum64())
}
