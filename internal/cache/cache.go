// ABOUTME: Bounded TTL cache over a key/value store namespace
// ABOUTME: JSON entries with per-entry TTL, byte/item ceilings, oldest-first eviction

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/sabeel/lessonstore/internal/kvstore"
)

// Entry is the serialized cache record: opaque data plus creation time and an
// optional TTL. An entry with TTL set is expired once now-Timestamp > TTL;
// entries without TTL only leave the cache through capacity eviction.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`     // epoch milliseconds
	TTL       int64           `json:"ttl,omitempty"` // milliseconds
}

// Expired reports whether the entry's own TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.UnixMilli()-e.Timestamp > e.TTL
}

// OlderThan reports whether the entry was written more than maxAge ago.
func (e *Entry) OlderThan(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.UnixMilli()-e.Timestamp > maxAge.Milliseconds()
}

// Item pairs a namespace-relative key with its parsed entry.
type Item struct {
	Key   string
	Entry Entry
}

// Stats summarizes a namespace: item count, summed serialized byte size, and
// how many entries are past their TTL.
type Stats struct {
	TotalItems   int
	TotalSize    int64
	ExpiredItems int
}

// Config tunes one cache namespace. Zero values take defaults.
type Config struct {
	// Name labels log lines and metrics for this namespace.
	Name string

	// MaxBytes / MaxItems are the capacity ceilings.
	MaxBytes int64
	MaxItems int

	// Headroom is the fraction of each ceiling eviction shrinks to. The gap
	// keeps back-to-back writes at the boundary from evicting every time.
	Headroom float64

	// OversizedFraction: items larger than this fraction of MaxBytes are
	// refused outright instead of cached.
	OversizedFraction float64

	// Now overrides the clock, for tests.
	Now func() time.Time

	Logger *slog.Logger
}

// Default capacity ceilings per namespace.
const (
	DefaultAPIMaxBytes     = 30 * 1024 * 1024
	DefaultAPIMaxItems     = 500
	DefaultOfflineMaxBytes = 20 * 1024 * 1024
	DefaultOfflineMaxItems = 300

	defaultHeadroom          = 0.8
	defaultOversizedFraction = 0.10
)

// Cache is a bounded TTL cache over one store namespace. Writes are
// fire-and-forget: a failed cache write must never break the feature using
// the cache, so Set logs instead of returning errors.
type Cache struct {
	store     kvstore.Store
	name      string
	maxBytes  int64
	maxItems  int
	headroom  float64
	oversized float64
	now       func() time.Time
	log       *slog.Logger

	// mu serializes the write/reconcile path so concurrent Sets do not run
	// eviction over each other.
	mu sync.Mutex

	hits        *metrics.Counter
	misses      *metrics.Counter
	evictions   *metrics.Counter
	expirations *metrics.Counter
}

// New builds a cache over store with the given configuration.
func New(store kvstore.Store, cfg Config) *Cache {
	if cfg.Name == "" {
		cfg.Name = "cache"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultAPIMaxBytes
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultAPIMaxItems
	}
	if cfg.Headroom <= 0 || cfg.Headroom >= 1 {
		cfg.Headroom = defaultHeadroom
	}
	if cfg.OversizedFraction <= 0 || cfg.OversizedFraction >= 1 {
		cfg.OversizedFraction = defaultOversizedFraction
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		store:       store,
		name:        cfg.Name,
		maxBytes:    cfg.MaxBytes,
		maxItems:    cfg.MaxItems,
		headroom:    cfg.Headroom,
		oversized:   cfg.OversizedFraction,
		now:         cfg.Now,
		log:         cfg.Logger,
		hits:        metrics.GetOrCreateCounter(fmt.Sprintf(`lessonstore_cache_hits_total{namespace=%q}`, cfg.Name)),
		misses:      metrics.GetOrCreateCounter(fmt.Sprintf(`lessonstore_cache_misses_total{namespace=%q}`, cfg.Name)),
		evictions:   metrics.GetOrCreateCounter(fmt.Sprintf(`lessonstore_cache_evictions_total{namespace=%q}`, cfg.Name)),
		expirations: metrics.GetOrCreateCounter(fmt.Sprintf(`lessonstore_cache_expirations_total{namespace=%q}`, cfg.Name)),
	}
}

// Set caches data under key with an optional TTL (ttl <= 0 means no time
// expiry). The write is reconciled against the capacity ceilings afterwards.
// Oversized items are refused silently. Set never reports an error to the
// caller; failures are logged.
func (c *Cache) Set(ctx context.Context, key string, data any, ttl time.Duration) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Warn("cache marshal failed", "namespace", c.name, "key", key, "error", err)
		return
	}

	entry := Entry{Data: raw, Timestamp: c.now().UnixMilli()}
	if ttl > 0 {
		entry.TTL = ttl.Milliseconds()
	}
	blob, err := json.Marshal(&entry)
	if err != nil {
		c.log.Warn("cache marshal failed", "namespace", c.name, "key", key, "error", err)
		return
	}

	if int64(len(blob)) > int64(float64(c.maxBytes)*c.oversized) {
		c.log.Debug("item too large to cache", "namespace", c.name, "key", key, "size", len(blob))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Set(ctx, key, blob); err != nil {
		if kvstore.IsStorageFull(err) {
			c.emergencyCleanup(ctx, key, blob)
			return
		}
		c.log.Warn("cache write failed", "namespace", c.name, "key", key, "error", err)
		return
	}

	c.reconcile(ctx)
}

// Get loads the entry for key into dst (a JSON-unmarshal target, may be nil
// to only probe). Corrupted entries are deleted and treated as a miss, as
// are entries past their TTL.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	return c.getBounded(ctx, key, 0, dst)
}

// GetWithin behaves like Get but additionally treats any entry older than
// maxAge as a miss, even if its stored TTL has not elapsed. The entry is left
// in place so a stale read can still find it.
func (c *Cache) GetWithin(ctx context.Context, key string, maxAge time.Duration, dst any) bool {
	return c.getBounded(ctx, key, maxAge, dst)
}

// GetStale loads the entry for key ignoring TTL and age entirely. Used for
// the offline fallback path. Corrupted entries still self-heal.
func (c *Cache) GetStale(ctx context.Context, key string, dst any) bool {
	blob, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	var entry Entry
	if err := json.Unmarshal(blob, &entry); err != nil {
		c.removeCorrupted(ctx, key, err)
		return false
	}
	if dst != nil {
		if err := json.Unmarshal(entry.Data, dst); err != nil {
			c.removeCorrupted(ctx, key, err)
			return false
		}
	}
	return true
}

func (c *Cache) getBounded(ctx context.Context, key string, maxAge time.Duration, dst any) bool {
	blob, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", "namespace", c.name, "key", key, "error", err)
		c.misses.Inc()
		return false
	}
	if !ok {
		c.misses.Inc()
		return false
	}

	var entry Entry
	if err := json.Unmarshal(blob, &entry); err != nil {
		c.removeCorrupted(ctx, key, err)
		c.misses.Inc()
		return false
	}

	now := c.now()
	if entry.Expired(now) {
		if _, err := c.store.Delete(ctx, key); err == nil {
			c.expirations.Inc()
		}
		c.misses.Inc()
		return false
	}
	if entry.OlderThan(now, maxAge) {
		c.misses.Inc()
		return false
	}

	if dst != nil {
		if err := json.Unmarshal(entry.Data, dst); err != nil {
			c.removeCorrupted(ctx, key, err)
			c.misses.Inc()
			return false
		}
	}
	c.hits.Inc()
	return true
}

// Delete removes one entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.store.Delete(ctx, key)
	return err
}

// Exists reports whether an entry is present for key. It does not consult
// TTL; use Get for freshness-aware reads.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.store.Contains(ctx, key)
}

// Clear removes every entry in the namespace.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Items enumerates all entries in the namespace. Entries that fail to parse
// are removed as a side effect and dropped from the result.
func (c *Cache) Items(ctx context.Context) ([]Item, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}

	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		blob, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(blob, &entry); err != nil {
			c.removeCorrupted(ctx, key, err)
			continue
		}
		items = append(items, Item{Key: key, Entry: entry})
	}
	return items, nil
}

// CleanExpired scans the namespace and deletes entries past their TTL,
// returning how many were removed.
func (c *Cache) CleanExpired(ctx context.Context) (int, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return 0, err
	}
	now := c.now()
	removed := 0
	for _, it := range items {
		if it.Entry.Expired(now) {
			if _, err := c.store.Delete(ctx, it.Key); err != nil {
				c.log.Warn("expired entry delete failed", "namespace", c.name, "key", it.Key, "error", err)
				continue
			}
			c.expirations.Inc()
			removed++
		}
	}
	return removed, nil
}

// Stats computes the namespace totals. TotalSize is the summed byte length of
// the serialized entries.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list cache keys: %w", err)
	}

	var stats Stats
	now := c.now()
	for _, key := range keys {
		blob, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		stats.TotalItems++
		stats.TotalSize += int64(len(blob))

		var entry Entry
		if err := json.Unmarshal(blob, &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			stats.ExpiredItems++
		}
	}
	return stats, nil
}

// Name returns the namespace label.
func (c *Cache) Name() string {
	return c.name
}

func (c *Cache) removeCorrupted(ctx context.Context, key string, cause error) {
	c.log.Warn("removing corrupted cache entry", "namespace", c.name, "key", key, "error", cause)
	if _, err := c.store.Delete(ctx, key); err != nil {
		c.log.Warn("corrupted entry delete failed", "namespace", c.name, "key", key, "error", err)
	}
}
