// ABOUTME: Process-wide application context wiring storage, caches, and clients
// ABOUTME: Opens backends, runs legacy migration, and owns component lifecycle

package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sabeel/lessonstore/internal/activity"
	"github.com/sabeel/lessonstore/internal/cache"
	"github.com/sabeel/lessonstore/internal/config"
	"github.com/sabeel/lessonstore/internal/content"
	"github.com/sabeel/lessonstore/internal/downloads"
	"github.com/sabeel/lessonstore/internal/fetch"
	"github.com/sabeel/lessonstore/internal/kvstore"
	"github.com/sabeel/lessonstore/internal/migrate"
)

// App bundles the subsystem components behind one lifecycle. Everything is
// built in New and torn down in Close; there are no package-level singletons.
type App struct {
	Config *config.Config
	Log    *slog.Logger

	Stores       *kvstore.Stores
	APICache     *cache.Cache
	OfflineCache *cache.Cache
	Content      *content.Client
	Activity     *activity.Store
	Downloads    *downloads.Manager

	sweeper *Sweeper
}

// Sweeper is re-exported so callers need not import the cache package for
// lifecycle control.
type Sweeper = cache.Sweeper

// New opens storage, migrates legacy data when the primary engine is active,
// and wires every component. The returned App owns the stores; call Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	stores, err := kvstore.Open(cfg.GetDataDir(), cfg.GetBackend(), log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{Config: cfg, Log: log, Stores: stores}

	if stores.Backend == kvstore.BackendBadger {
		if _, err := a.migrateLegacy(ctx); err != nil {
			// Legacy data stays put for the next launch.
			log.Warn("legacy migration skipped", "error", err)
		}
	}

	a.APICache = cache.New(stores.Cache, cache.Config{
		Name:     "api",
		MaxBytes: cfg.CacheMaxBytes,
		MaxItems: cfg.CacheMaxItems,
		Logger:   log,
	})
	a.OfflineCache = cache.New(stores.Offline, cache.Config{
		Name:     "offline",
		MaxBytes: offlineBytes(cfg),
		MaxItems: offlineItems(cfg),
		Logger:   log,
	})

	client := fetch.NewClient(config.DefaultHTTPTimeout)
	fetcher := fetch.NewFetcher(client, a.APICache, fetch.FetcherConfig{
		KeepHeaders: content.KeepHeaders(),
		Logger:      log,
	})
	a.Content = content.New(fetcher, cfg.GetAPIBaseURL(), 0)

	a.Activity = activity.NewStore(stores.User, log)

	var blobs downloads.BlobStore
	if !cfg.DisableDownloads {
		blobs = downloads.NewFSBlobStore(cfg.MediaDir())
	}
	a.Downloads = downloads.NewManager(stores.User, blobs, log)

	a.sweeper = cache.NewSweeper(cfg.GetSweepInterval(), log, a.APICache, a.OfflineCache)
	a.sweeper.Start()

	return a, nil
}

// migrateLegacy moves data from the sqlite fallback database into the active
// primary store, then runs once more on each launch until the fallback is
// empty. A missing fallback file means there is nothing to migrate.
func (a *App) migrateLegacy(ctx context.Context) (*migrate.Summary, error) {
	path := kvstore.FallbackPath(a.Config.GetDataDir())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &migrate.Summary{}, nil
	}

	legacy, err := kvstore.NewSQLiteStore(path, a.Log)
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}
	defer legacy.Close()

	return migrate.New(legacy, a.Stores, a.Log).Run(ctx)
}

// MigrateLegacy runs the legacy migration on demand. Only meaningful when
// the primary engine is active; on the fallback engine the legacy store IS
// the live store and migration would eat its own source.
func (a *App) MigrateLegacy(ctx context.Context) (*migrate.Summary, error) {
	if a.Stores.Backend != kvstore.BackendBadger {
		return nil, fmt.Errorf("migration requires the %s backend (running on %s)",
			kvstore.BackendBadger, a.Stores.Backend)
	}
	return a.migrateLegacy(ctx)
}

// Close stops background work and releases storage.
func (a *App) Close() error {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	return a.Stores.Close()
}

func offlineBytes(cfg *config.Config) int64 {
	if cfg.OfflineMaxBytes > 0 {
		return cfg.OfflineMaxBytes
	}
	return cache.DefaultOfflineMaxBytes
}

func offlineItems(cfg *config.Config) int {
	if cfg.OfflineMaxItems > 0 {
		return cfg.OfflineMaxItems
	}
	return cache.DefaultOfflineMaxItems
}
