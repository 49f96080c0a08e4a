// ABOUTME: Download manager over the user namespace and the blob capability
// ABOUTME: Falls back to streaming-only records when blob storage is missing

package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sabeel/lessonstore/internal/kvstore"
	"github.com/sabeel/lessonstore/internal/models"
)

// KeyFiles is the user-namespace key holding the downloaded-file records.
// The _v2 suffix survives from an earlier record layout; the migrator copies
// it verbatim so the suffix stays.
const KeyFiles = "downloadedFiles_v2"

// ErrInProgress reports that a transfer for the lesson is already running.
var ErrInProgress = errors.New("download already in progress")

// Manager tracks downloaded media. Records live as one JSON array under
// KeyFiles in the user namespace. With a BlobStore the media itself is
// fetched to disk; without one the manager still records the download as a
// streaming-only entry with no local path.
type Manager struct {
	kv    kvstore.Store
	blobs BlobStore
	log   *slog.Logger

	mu     sync.Mutex
	loaded bool
	files  []models.DownloadedFile

	listeners *xsync.MapOf[string, ProgressFunc]
	cancels   *xsync.MapOf[string, context.CancelFunc]
}

// NewManager creates a manager over the user namespace. blobs may be nil,
// which puts the manager in streaming-only mode.
func NewManager(kv kvstore.Store, blobs BlobStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		kv:        kv,
		blobs:     blobs,
		log:       log,
		listeners: xsync.NewMapOf[string, ProgressFunc](),
		cancels:   xsync.NewMapOf[string, context.CancelFunc](),
	}
}

// StreamingOnly reports whether the blob capability is unavailable and all
// downloads are recorded as streaming-only.
func (m *Manager) StreamingOnly() bool { return m.blobs == nil }

// Subscribe registers a progress listener for the given download id. One
// listener per id; a second Subscribe replaces the first. The listener is
// dropped when the download completes, fails, or is cancelled.
func (m *Manager) Subscribe(id string, fn ProgressFunc) {
	m.listeners.Store(id, fn)
}

// Unsubscribe drops the progress listener for id.
func (m *Manager) Unsubscribe(id string) {
	m.listeners.Delete(id)
}

// Cancel aborts an in-flight download. Returns false when no download with
// that id is running. The registry entries stay until the aborted transfer
// unwinds; only the downloading goroutine removes them, so cancelling can
// never free a slot a later download already claimed.
func (m *Manager) Cancel(id string) bool {
	cancel, ok := m.cancels.Load(id)
	if !ok {
		return false
	}
	cancel()
	return true
}

// Download records ref as downloaded, fetching the media to local storage
// when the blob capability is available. Returns the stored record. When a
// record for ref.ID already exists it is returned unchanged.
func (m *Manager) Download(ctx context.Context, ref models.LessonRef) (*models.DownloadedFile, error) {
	if existing, err := m.Get(ctx, ref.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	rec := models.DownloadedFile{
		ID:           ref.ID,
		Title:        ref.Title,
		URL:          ref.AudioURL,
		CategoryID:   ref.CategoryID,
		CategoryName: ref.CategoryName,
		DownloadedAt: time.Now(),
	}

	if m.blobs != nil && ref.AudioURL != "" {
		dlCtx, cancel := context.WithCancel(ctx)
		if _, running := m.cancels.LoadOrStore(ref.ID, cancel); running {
			cancel()
			return nil, fmt.Errorf("download lesson %s: %w", ref.ID, ErrInProgress)
		}
		// This goroutine owns the registry entries until it removes them;
		// the listener goes first so nothing fires after the slot reopens.
		defer func() {
			cancel()
			m.listeners.Delete(ref.ID)
			m.cancels.Delete(ref.ID)
		}()

		local := localName(ref.ID, ref.AudioURL)
		size, err := m.blobs.DownloadToFile(dlCtx, ref.AudioURL, local, func(received, total int64) {
			if fn, ok := m.listeners.Load(ref.ID); ok {
				fn(received, total)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("download lesson %s: %w", ref.ID, err)
		}
		rec.LocalPath = local
		rec.Size = size
	}

	inserted, err := m.append(ctx, rec)
	if err != nil {
		if rec.LocalPath != "" {
			if rmErr := m.blobs.Remove(rec.LocalPath); rmErr != nil {
				m.log.Warn("orphaned download blob", "path", rec.LocalPath, "error", rmErr)
			}
		}
		return nil, err
	}
	if !inserted {
		// A racing download for the same lesson appended first; its record
		// wins. Both compute the same blob path, so nothing is orphaned.
		return m.Get(ctx, ref.ID)
	}
	return &rec, nil
}

// Remove deletes the record for id and its local blob when present. Returns
// false when no record exists. A blob that fails to delete is logged and the
// record is removed anyway.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return false, err
	}

	next := make([]models.DownloadedFile, 0, len(m.files))
	var removed *models.DownloadedFile
	for _, f := range m.files {
		if f.ID == id {
			f := f
			removed = &f
			continue
		}
		next = append(next, f)
	}
	if removed == nil {
		return false, nil
	}
	if err := m.persist(ctx, next); err != nil {
		return false, err
	}
	m.files = next

	if removed.LocalPath != "" && m.blobs != nil {
		if err := m.blobs.Remove(removed.LocalPath); err != nil {
			m.log.Warn("removing download blob failed", "path", removed.LocalPath, "error", err)
		}
	}
	return true, nil
}

// Get returns the record for id, or nil when absent.
func (m *Manager) Get(ctx context.Context, id string) (*models.DownloadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	for _, f := range m.files {
		if f.ID == id {
			f := f
			return &f, nil
		}
	}
	return nil, nil
}

// Files returns a copy of all download records.
func (m *Manager) Files(ctx context.Context) ([]models.DownloadedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return append([]models.DownloadedFile{}, m.files...), nil
}

// TotalBytes sums the sizes of all local downloads.
func (m *Manager) TotalBytes(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	var total int64
	for _, f := range m.files {
		total += f.Size
	}
	return total, nil
}

// Clear removes all records and their local blobs.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}
	for _, f := range m.files {
		if f.LocalPath != "" && m.blobs != nil {
			if err := m.blobs.Remove(f.LocalPath); err != nil {
				m.log.Warn("removing download blob failed", "path", f.LocalPath, "error", err)
			}
		}
	}
	if _, err := m.kv.Delete(ctx, KeyFiles); err != nil {
		return fmt.Errorf("clear downloads: %w", err)
	}
	m.files = nil
	return nil
}

// append stores rec unless a record with its id already exists. The
// membership check runs under the lock: the pre-flight check in Download is
// advisory only, since the lock is necessarily dropped during a transfer.
func (m *Manager) append(ctx context.Context, rec models.DownloadedFile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return false, err
	}
	for _, f := range m.files {
		if f.ID == rec.ID {
			return false, nil
		}
	}
	next := append(append([]models.DownloadedFile{}, m.files...), rec)
	if err := m.persist(ctx, next); err != nil {
		return false, err
	}
	m.files = next
	return true, nil
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	blob, ok, err := m.kv.Get(ctx, KeyFiles)
	if err != nil {
		return fmt.Errorf("load downloads: %w", err)
	}
	if ok {
		if err := json.Unmarshal(blob, &m.files); err != nil {
			m.log.Warn("resetting corrupted download records", "error", err)
			m.files = nil
		}
	}
	m.loaded = true
	return nil
}

func (m *Manager) persist(ctx context.Context, files []models.DownloadedFile) error {
	blob, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("marshal downloads: %w", err)
	}
	if err := m.kv.Set(ctx, KeyFiles, blob); err != nil {
		return fmt.Errorf("persist downloads: %w", err)
	}
	return nil
}

// localName derives a relative blob path from the lesson id and its audio
// URL's extension.
func localName(id, audioURL string) string {
	ext := ".mp3"
	if u, err := url.Parse(audioURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return id + ext
}
