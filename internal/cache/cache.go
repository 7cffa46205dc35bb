// Package cache provides an expiring, capacity-bounded cache over a
// string key-value store.
//
// Entries are JSON documents holding the value plus its creation and expiry
// timestamps. Every instance owns one key namespace inside the store and never
// touches keys outside of it. Storage failures and corrupt entries are logged
// and treated as misses; they never reach the caller.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rahul/contentpilot/internal/store"
)

// Entry is the stored form of a cached value.
type Entry[T any] struct {
	Value     T     `json:"value"`
	CreatedAt int64 `json:"created_at"` // unix nanoseconds
	ExpiresAt int64 `json:"expires_at"` // unix nanoseconds
}

func (e Entry[T]) expired(now time.Time) bool {
	return now.UnixNano() >= e.ExpiresAt
}

// Cache is a TTL cache for values of type T.
type Cache[T any] struct {
	mu      sync.Mutex
	kv      store.KV
	name    string
	prefix  string
	policy  Policy
	now     func() time.Time
	stats   *Statistics
	metrics *cacheMetrics
}

// New creates a cache storing its entries in kv under the given namespace.
func New[T any](kv store.KV, namespace string, policy Policy, opts ...Option) (*Cache[T], error) {
	if kv == nil {
		return nil, fmt.Errorf("cache %q: nil store", namespace)
	}
	if namespace == "" || strings.Contains(namespace, ":") {
		return nil, fmt.Errorf("invalid cache namespace %q", namespace)
	}
	if policy.TTL <= 0 || policy.Capacity <= 0 {
		return nil, fmt.Errorf("cache %q: TTL and capacity must be positive", namespace)
	}

	o := applyOptions(opts)
	c := &Cache[T]{
		kv:     kv,
		name:   namespace,
		prefix: o.keyPrefix + namespace + ":",
		policy: policy,
		now:    o.clock,
		stats:  &Statistics{},
	}
	if o.registerer != nil {
		m, err := newCacheMetrics(o.registerer, namespace)
		if err != nil {
			return nil, fmt.Errorf("cache %q: metrics registration: %w", namespace, err)
		}
		c.metrics = m
	}
	return c, nil
}

// Name returns the namespace of the cache.
func (c *Cache[T]) Name() string { return c.name }

// Policy returns the TTL and capacity the cache was built with.
func (c *Cache[T]) Policy() Policy { return c.policy }

// Key returns the store key for lookup.
func (c *Cache[T]) Key(lookup Lookup) string {
	sum := sha256.Sum256([]byte(lookup.canonical()))
	return c.prefix + hex.EncodeToString(sum[:16])
}

// Get returns the cached value for lookup. Missing and expired entries are
// reported as absent; an expired entry is removed from the store.
func (c *Cache[T]) Get(lookup Lookup) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	key := c.Key(lookup)
	entry, ok := c.read(key)
	if !ok {
		c.miss()
		return zero, false
	}
	if entry.expired(c.now()) {
		c.remove(key)
		c.stats.expired.Add(1)
		c.metrics.expired()
		c.miss()
		return zero, false
	}
	c.stats.hits.Add(1)
	c.metrics.hit()
	return entry.Value, true
}

// Set stores value under lookup with the default TTL of the cache policy.
func (c *Cache[T]) Set(lookup Lookup, value T) {
	c.SetTTL(lookup, value, c.policy.TTL)
}

// SetTTL stores value under lookup, expiring after ttl. When the namespace is
// full the entry with the oldest creation time is evicted first.
func (c *Cache[T]) SetTTL(lookup Lookup, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.Key(lookup)
	keys, err := c.kv.Keys(c.prefix)
	if err != nil {
		log.Printf("[cache:%s] listing keys failed: %v", c.name, err)
		return
	}
	if !contains(keys, key) && len(keys) >= c.policy.Capacity {
		c.evictOldest(keys)
	}

	now := c.now()
	data, err := json.Marshal(Entry[T]{
		Value:     value,
		CreatedAt: now.UnixNano(),
		ExpiresAt: now.Add(ttl).UnixNano(),
	})
	if err != nil {
		log.Printf("[cache:%s] encoding value failed: %v", c.name, err)
		return
	}
	if err := c.kv.Set(key, string(data)); err != nil {
		log.Printf("[cache:%s] storing entry failed: %v", c.name, err)
		return
	}
	c.stats.sets.Add(1)
	c.metrics.set()
}

// Delete removes the entry for lookup, reporting whether one existed.
func (c *Cache[T]) Delete(lookup Lookup) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.Key(lookup)
	if _, ok, err := c.kv.Get(key); err != nil || !ok {
		return false
	}
	return c.remove(key)
}

// Invalidate removes every entry of the namespace whose key contains pattern.
// An empty pattern clears the namespace. It returns the number of removed
// entries.
func (c *Cache[T]) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.kv.Keys(c.prefix)
	if err != nil {
		log.Printf("[cache:%s] listing keys failed: %v", c.name, err)
		return 0
	}
	removed := 0
	for _, k := range keys {
		if pattern == "" || strings.Contains(k, pattern) {
			if c.remove(k) {
				removed++
			}
		}
	}
	return removed
}

// Cleanup removes every expired or unreadable entry and returns how many were
// removed.
func (c *Cache[T]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.kv.Keys(c.prefix)
	if err != nil {
		log.Printf("[cache:%s] listing keys failed: %v", c.name, err)
		return 0
	}
	now := c.now()
	removed := 0
	for _, k := range keys {
		entry, ok := c.read(k)
		if !ok {
			// read already dropped corrupt entries; a vanished key is fine too.
			continue
		}
		if entry.expired(now) && c.remove(k) {
			c.stats.expired.Add(1)
			c.metrics.expired()
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				log.Printf("[cache:%s] swept %d expired entries", c.name, n)
			}
		}
	}
}

// GetOrLoad returns the cached value for lookup or calls load and caches its
// result. Errors from load are returned and nothing is cached.
func (c *Cache[T]) GetOrLoad(ctx context.Context, lookup Lookup, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(lookup); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(lookup, v)
	return v, nil
}

// Stats returns a snapshot of the cache counters and its current size.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats.snapshot()
	keys, err := c.kv.Keys(c.prefix)
	if err != nil {
		log.Printf("[cache:%s] listing keys failed: %v", c.name, err)
	}
	s.Entries = len(keys)
	c.metrics.size(len(keys))
	return s
}

// read loads and decodes the entry at key. Corrupt entries are deleted.
func (c *Cache[T]) read(key string) (Entry[T], bool) {
	var entry Entry[T]
	raw, ok, err := c.kv.Get(key)
	if err != nil {
		log.Printf("[cache:%s] reading %s failed: %v", c.name, key, err)
		return entry, false
	}
	if !ok {
		return entry, false
	}
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.ExpiresAt == 0 {
		log.Printf("[cache:%s] dropping corrupt entry %s", c.name, key)
		c.remove(key)
		c.stats.corrupt.Add(1)
		return Entry[T]{}, false
	}
	return entry, true
}

func (c *Cache[T]) remove(key string) bool {
	if err := c.kv.Remove(key); err != nil {
		log.Printf("[cache:%s] removing %s failed: %v", c.name, key, err)
		return false
	}
	c.metrics.deleted()
	return true
}

func (c *Cache[T]) evictOldest(keys []string) {
	oldestKey := ""
	var oldest int64
	for _, k := range keys {
		entry, ok := c.read(k)
		if !ok {
			continue
		}
		if oldestKey == "" || entry.CreatedAt < oldest {
			oldestKey, oldest = k, entry.CreatedAt
		}
	}
	if oldestKey != "" && c.remove(oldestKey) {
		c.stats.evictions.Add(1)
		c.metrics.evicted()
	}
}

func (c *Cache[T]) miss() {
	c.stats.misses.Add(1)
	c.metrics.miss()
}

func contains(keys []string, key string) bool {
	i := sort.SearchStrings(keys, key)
	return i < len(keys) && keys[i] == key
}
