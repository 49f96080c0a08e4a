// ABOUTME: Backend selection at startup: try badger, fall back to SQLite
// ABOUTME: Produces the three namespaced store views sharing one engine

package kvstore

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

const (
	// BackendBadger is the primary embedded engine.
	BackendBadger = "badger"
	// BackendSQLite is the durable fallback engine.
	BackendSQLite = "sqlite"

	badgerDirName  = "store"
	fallbackDBName = "fallback.db"
)

// Stores bundles the opened engine and its three namespace views. User holds
// domain records, Cache holds API response entries, Offline holds offline
// content entries. The views are logically separate stores even though they
// share one engine.
type Stores struct {
	User    Store
	Cache   Store
	Offline Store

	// Backend names the engine actually selected.
	Backend string

	base Store
}

// Base returns the shared underlying engine. Used by maintenance tooling;
// feature code works against the namespace views.
func (s *Stores) Base() Store {
	return s.base
}

// Close closes the shared engine.
func (s *Stores) Close() error {
	return s.base.Close()
}

// Open selects a backend under dir and returns the namespaced stores.
// The primary badger engine is attempted first; on any construction failure
// a warning is logged and the SQLite fallback is substituted transparently
// behind the same interface.
//
// With backend set to BackendBadger or BackendSQLite the selection is forced;
// empty means auto.
func Open(dir, backend string, log *slog.Logger) (*Stores, error) {
	if log == nil {
		log = slog.Default()
	}

	var base Store
	selected := BackendBadger

	switch backend {
	case BackendSQLite:
		fb, err := NewSQLiteStore(FallbackPath(dir), log)
		if err != nil {
			return nil, fmt.Errorf("open fallback store: %w", err)
		}
		base, selected = fb, BackendSQLite
	case BackendBadger, "":
		primary, err := NewBadgerStore(filepath.Join(dir, badgerDirName))
		if err != nil {
			if backend == BackendBadger {
				return nil, fmt.Errorf("open primary store: %w", err)
			}
			log.Warn("primary store unavailable, using fallback", "error", err)
			fb, ferr := NewSQLiteStore(FallbackPath(dir), log)
			if ferr != nil {
				return nil, fmt.Errorf("open fallback store: %w", ferr)
			}
			base, selected = fb, BackendSQLite
		} else {
			base = primary
		}
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}

	log.Info("storage opened", "backend", selected, "dir", dir)
	return &Stores{
		User:    NewPrefixed(base, UserPrefix),
		Cache:   NewPrefixed(base, CachePrefix),
		Offline: NewPrefixed(base, OfflinePrefix),
		Backend: selected,
		base:    base,
	}, nil
}

// FallbackPath returns the SQLite fallback database path under dir. The
// startup migrator uses this to find legacy data after the primary engine
// becomes available again.
func FallbackPath(dir string) string {
	return filepath.Join(dir, fallbackDBName)
}
