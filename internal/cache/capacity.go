// ABOUTME: Capacity reconciliation and emergency cleanup for the bounded cache
// ABOUTME: Oldest-first eviction down to the headroom thresholds, best-effort

package cache

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/sabeel/lessonstore/internal/kvstore"
)

// scanned is one entry's footprint during a capacity scan.
type scanned struct {
	key     string
	ts      int64
	size    int64
	expired bool
}

// reconcile enforces the capacity ceilings after a write. Expired entries are
// always purged; if either ceiling is exceeded, the oldest entries are removed
// until both totals sit at or under the headroom fraction of their ceiling.
// The whole pass is advisory: this is a cache, losing an entry costs a
// re-fetch, so scan races with concurrent writers are acceptable.
func (c *Cache) reconcile(ctx context.Context) {
	entries, totalSize, err := c.scan(ctx)
	if err != nil {
		c.log.Warn("capacity scan failed", "namespace", c.name, "error", err)
		return
	}

	// Expired entries go first regardless of capacity pressure.
	live := entries[:0]
	for _, e := range entries {
		if e.expired {
			if c.remove(ctx, e.key) {
				c.expirations.Inc()
				totalSize -= e.size
			}
			continue
		}
		live = append(live, e)
	}

	if totalSize <= c.maxBytes && len(live) <= c.maxItems {
		return
	}

	targetSize := int64(float64(c.maxBytes) * c.headroom)
	targetItems := int(float64(c.maxItems) * c.headroom)

	sort.SliceStable(live, func(i, j int) bool { return live[i].ts < live[j].ts })

	count := len(live)
	for _, e := range live {
		if totalSize <= targetSize && count <= targetItems {
			break
		}
		if c.remove(ctx, e.key) {
			c.evictions.Inc()
			totalSize -= e.size
			count--
		}
	}
	c.log.Debug("cache evicted to headroom",
		"namespace", c.name, "items", count, "bytes", totalSize)
}

// emergencyCleanup handles a storage-full failure during a write: purge all
// expired entries and retry; if the backend still rejects the write, drop the
// oldest half of the remaining entries and retry exactly once more. A final
// failure is logged and swallowed.
func (c *Cache) emergencyCleanup(ctx context.Context, key string, blob []byte) {
	c.log.Warn("storage full, running emergency cleanup", "namespace", c.name, "key", key)

	entries, _, err := c.scan(ctx)
	if err != nil {
		c.log.Warn("emergency scan failed", "namespace", c.name, "error", err)
		return
	}

	live := entries[:0]
	for _, e := range entries {
		if e.expired {
			if c.remove(ctx, e.key) {
				c.expirations.Inc()
			}
			continue
		}
		live = append(live, e)
	}

	err = c.store.Set(ctx, key, blob)
	if err == nil {
		return
	}
	if !kvstore.IsStorageFull(err) {
		c.log.Warn("cache write failed after cleanup", "namespace", c.name, "key", key, "error", err)
		return
	}

	// Still full: sacrifice the oldest half.
	sort.SliceStable(live, func(i, j int) bool { return live[i].ts < live[j].ts })
	for _, e := range live[:len(live)/2] {
		if c.remove(ctx, e.key) {
			c.evictions.Inc()
		}
	}

	if err := c.store.Set(ctx, key, blob); err != nil {
		c.log.Warn("cache write abandoned after emergency cleanup",
			"namespace", c.name, "key", key, "error", err)
	}
}

// scan walks the namespace collecting per-entry footprints. Unparsable
// entries are removed on sight.
func (c *Cache) scan(ctx context.Context) ([]scanned, int64, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, 0, err
	}

	now := c.now()
	entries := make([]scanned, 0, len(keys))
	var totalSize int64
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
		size := int64(len(blob))
		totalSize += size
		entries = append(entries, scanned{
			key:     key,
			ts:      entry.Timestamp,
			size:    size,
			expired: entry.Expired(now),
		})
	}
	return entries, totalSize, nil
}

func (c *Cache) remove(ctx context.Context, key string) bool {
	removed, err := c.store.Delete(ctx, key)
	if err != nil {
		c.log.Warn("cache delete failed", "namespace", c.name, "key", key, "error", err)
		return false
	}
	return removed
}
