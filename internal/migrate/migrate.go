// ABOUTME: One-shot migration of legacy fallback-store data into the primary store
// ABOUTME: Classifies keys by prefix and copies them into the matching namespace

package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sabeel/lessonstore/internal/kvstore"
)

// LegacyOfflinePrefix is the offline-content prefix used by the old flat
// fallback layout. Keys carrying it land in the offline namespace.
const LegacyOfflinePrefix = "offline_posts_"

// Summary holds per-namespace counts of migrated keys.
type Summary struct {
	Cache   int
	Offline int
	User    int
	Failed  int
}

// Total returns the number of keys successfully migrated.
func (s *Summary) Total() int {
	return s.Cache + s.Offline + s.User
}

// Migrator moves data out of a legacy flat store into the namespaced primary
// store. Safe to run repeatedly: each key is deleted from the source only
// after a successful copy, so a second run sees only what the first one
// failed to move.
type Migrator struct {
	legacy kvstore.Store
	dst    *kvstore.Stores
	log    *slog.Logger
}

// New creates a migrator from legacy into dst.
func New(legacy kvstore.Store, dst *kvstore.Stores, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{legacy: legacy, dst: dst, log: log}
}

// Run migrates every legacy key into its namespace. Per-key failures are
// logged and counted, never fatal: a key that could not move stays in the
// legacy store for the next launch.
func (m *Migrator) Run(ctx context.Context) (*Summary, error) {
	keys, err := m.legacy.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list legacy keys: %w", err)
	}

	summary := &Summary{}
	for _, key := range keys {
		dst, dstKey, counter := m.classify(key, summary)
		if err := m.moveKey(ctx, key, dst, dstKey); err != nil {
			m.log.Warn("key not migrated", "key", key, "error", err)
			summary.Failed++
			continue
		}
		*counter++
	}

	if summary.Total() > 0 || summary.Failed > 0 {
		m.log.Info("legacy migration finished",
			"cache", summary.Cache,
			"offline", summary.Offline,
			"user", summary.User,
			"failed", summary.Failed)
	}
	return summary, nil
}

// classify maps a source key to its destination namespace and the key to
// write there. The source can carry either layout: the legacy flat layout
// baked the namespace into the key (`api_cache_*`, `offline_posts_*`, bare
// user keys), while a session spent on the fallback engine writes the live
// prefixed layout into the same database. Both sets of prefixes are
// recognized and stripped; the namespace view re-applies its own.
func (m *Migrator) classify(key string, summary *Summary) (kvstore.Store, string, *int) {
	switch {
	case strings.HasPrefix(key, kvstore.CachePrefix):
		return m.dst.Cache, strings.TrimPrefix(key, kvstore.CachePrefix), &summary.Cache
	case strings.HasPrefix(key, kvstore.OfflinePrefix):
		return m.dst.Offline, strings.TrimPrefix(key, kvstore.OfflinePrefix), &summary.Offline
	case strings.HasPrefix(key, LegacyOfflinePrefix):
		return m.dst.Offline, strings.TrimPrefix(key, LegacyOfflinePrefix), &summary.Offline
	case strings.HasPrefix(key, kvstore.UserPrefix):
		return m.dst.User, strings.TrimPrefix(key, kvstore.UserPrefix), &summary.User
	default:
		return m.dst.User, key, &summary.User
	}
}

func (m *Migrator) moveKey(ctx context.Context, srcKey string, dst kvstore.Store, dstKey string) error {
	value, ok, err := m.legacy.Get(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("read legacy value: %w", err)
	}
	if !ok {
		// Already gone; nothing to move.
		return nil
	}
	if err := dst.Set(ctx, dstKey, value); err != nil {
		return fmt.Errorf("write migrated value: %w", err)
	}
	if _, err := m.legacy.Delete(ctx, srcKey); err != nil {
		return fmt.Errorf("remove legacy value: %w", err)
	}
	return nil
}
