// ABOUTME: Local store for completion, favorite, download, and activity records
// ABOUTME: Whole-collection JSON arrays under fixed keys in the user namespace

package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sabeel/lessonstore/internal/kvstore"
	"github.com/sabeel/lessonstore/internal/models"
)

// Well-known collection keys in the user namespace.
const (
	KeyCompleted  = "completedLessons"
	KeyFavorites  = "favoriteLessons"
	KeyDownloads  = "downloadedLessons"
	KeyActivities = "userActivities"
)

// MaxActivityRecords caps the activity log; the oldest records are dropped
// on overflow.
const MaxActivityRecords = 100

// RecentActivityCount is how many records Statistics returns.
const RecentActivityCount = 10

// Stats aggregates the user's local activity.
type Stats struct {
	CompletedCount       int
	FavoriteCount        int
	DownloadCount        int
	TotalDownloadedBytes int64
	RecentActivities     []models.ActivityRecord
}

// Store holds the four domain collections. Each collection is persisted as a
// single JSON array under one key and mirrored in memory; every mutation is
// a read-modify-write of the whole array. That is acceptable at this scale,
// collections stay in the low thousands. The mutex stands in for the
// original single-logical-thread ordering: a mutation fully persists before
// the next one begins.
type Store struct {
	kv  kvstore.Store
	log *slog.Logger

	mu         sync.Mutex
	loaded     bool
	completed  []models.CompletedLesson
	favorites  []models.FavoriteLesson
	downloads  []models.DownloadedLesson
	activities []models.ActivityRecord
}

// NewStore creates a store over the user namespace. Collections load lazily
// on first use; call Load at startup to surface read errors early.
func NewStore(kv kvstore.Store, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{kv: kv, log: log}
}

// Load reads all four collections into the in-memory mirror. Idempotent.
// A collection that fails to parse is reset to empty (and logged) rather
// than wedging every future mutation.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded(ctx)
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	if err := s.loadCollection(ctx, KeyCompleted, &s.completed); err != nil {
		return err
	}
	if err := s.loadCollection(ctx, KeyFavorites, &s.favorites); err != nil {
		return err
	}
	if err := s.loadCollection(ctx, KeyDownloads, &s.downloads); err != nil {
		return err
	}
	if err := s.loadCollection(ctx, KeyActivities, &s.activities); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func (s *Store) loadCollection(ctx context.Context, key string, dst any) error {
	blob, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		s.log.Warn("resetting corrupted collection", "key", key, "error", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, key string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, blob); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// MarkCompleted records a lesson as completed and logs a "completed"
// activity. Returns false without any effect when the lesson is already in
// the collection.
func (s *Store) MarkCompleted(ctx context.Context, ref models.LessonRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	for _, l := range s.completed {
		if l.LessonID == ref.ID {
			return false, nil
		}
	}

	next := append(append([]models.CompletedLesson{}, s.completed...), models.NewCompletedLesson(ref))
	if err := s.persist(ctx, KeyCompleted, next); err != nil {
		return false, err
	}
	s.completed = next

	s.appendActivity(ctx, models.NewActivityRecord(models.ActivityCompleted, ref))
	return true, nil
}

// MarkIncomplete removes a completion record by lesson id. No activity
// record is logged for un-completing, unlike MarkCompleted.
func (s *Store) MarkIncomplete(ctx context.Context, lessonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	next := make([]models.CompletedLesson, 0, len(s.completed))
	found := false
	for _, l := range s.completed {
		if l.LessonID == lessonID {
			found = true
			continue
		}
		next = append(next, l)
	}
	if !found {
		return false, nil
	}
	if err := s.persist(ctx, KeyCompleted, next); err != nil {
		return false, err
	}
	s.completed = next
	return true, nil
}

// AddFavorite records a favorite and logs a "favorited" activity.
func (s *Store) AddFavorite(ctx context.Context, ref models.LessonRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	for _, l := range s.favorites {
		if l.LessonID == ref.ID {
			return false, nil
		}
	}

	next := append(append([]models.FavoriteLesson{}, s.favorites...), models.NewFavoriteLesson(ref))
	if err := s.persist(ctx, KeyFavorites, next); err != nil {
		return false, err
	}
	s.favorites = next

	s.appendActivity(ctx, models.NewActivityRecord(models.ActivityFavorited, ref))
	return true, nil
}

// RemoveFavorite removes a favorite by lesson id.
func (s *Store) RemoveFavorite(ctx context.Context, lessonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	next := make([]models.FavoriteLesson, 0, len(s.favorites))
	found := false
	for _, l := range s.favorites {
		if l.LessonID == lessonID {
			found = true
			continue
		}
		next = append(next, l)
	}
	if !found {
		return false, nil
	}
	if err := s.persist(ctx, KeyFavorites, next); err != nil {
		return false, err
	}
	s.favorites = next
	return true, nil
}

// AddDownload records a download (with its byte size when known) and logs a
// "downloaded" activity carrying the audio URL.
func (s *Store) AddDownload(ctx context.Context, ref models.LessonRef, size int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	for _, l := range s.downloads {
		if l.LessonID == ref.ID {
			return false, nil
		}
	}

	next := append(append([]models.DownloadedLesson{}, s.downloads...), models.NewDownloadedLesson(ref, size))
	if err := s.persist(ctx, KeyDownloads, next); err != nil {
		return false, err
	}
	s.downloads = next

	s.appendActivity(ctx, models.NewActivityRecord(models.ActivityDownloaded, ref))
	return true, nil
}

// RemoveDownload removes a download record by lesson id.
func (s *Store) RemoveDownload(ctx context.Context, lessonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	next := make([]models.DownloadedLesson, 0, len(s.downloads))
	found := false
	for _, l := range s.downloads {
		if l.LessonID == lessonID {
			found = true
			continue
		}
		next = append(next, l)
	}
	if !found {
		return false, nil
	}
	if err := s.persist(ctx, KeyDownloads, next); err != nil {
		return false, err
	}
	s.downloads = next
	return true, nil
}

// LogStarted appends a "started" activity without touching any collection.
// Used when lesson playback begins.
func (s *Store) LogStarted(ctx context.Context, ref models.LessonRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.appendActivity(ctx, models.NewActivityRecord(models.ActivityStarted, ref))
	return nil
}

// appendActivity adds a record to the capped log. Activity logging is
// best-effort: a persist failure is logged, not propagated, so it cannot
// undo the domain mutation that triggered it. Caller holds the lock.
func (s *Store) appendActivity(ctx context.Context, rec models.ActivityRecord) {
	next := append(append([]models.ActivityRecord{}, s.activities...), rec)
	if over := len(next) - MaxActivityRecords; over > 0 {
		next = next[over:]
	}
	if err := s.persist(ctx, KeyActivities, next); err != nil {
		s.log.Warn("activity log write failed", "type", rec.Type, "error", err)
		return
	}
	s.activities = next
}

// IsCompleted reports membership in the completed collection.
func (s *Store) IsCompleted(ctx context.Context, lessonID string) (bool, error) {
	return s.contains(ctx, lessonID, func() bool {
		for _, l := range s.completed {
			if l.LessonID == lessonID {
				return true
			}
		}
		return false
	})
}

// IsFavorited reports membership in the favorites collection.
func (s *Store) IsFavorited(ctx context.Context, lessonID string) (bool, error) {
	return s.contains(ctx, lessonID, func() bool {
		for _, l := range s.favorites {
			if l.LessonID == lessonID {
				return true
			}
		}
		return false
	})
}

// IsDownloaded reports membership in the downloads collection.
func (s *Store) IsDownloaded(ctx context.Context, lessonID string) (bool, error) {
	return s.contains(ctx, lessonID, func() bool {
		for _, l := range s.downloads {
			if l.LessonID == lessonID {
				return true
			}
		}
		return false
	})
}

func (s *Store) contains(ctx context.Context, _ string, probe func() bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}
	return probe(), nil
}

// Completed returns a copy of the completed collection.
func (s *Store) Completed(ctx context.Context) ([]models.CompletedLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return append([]models.CompletedLesson{}, s.completed...), nil
}

// Favorites returns a copy of the favorites collection.
func (s *Store) Favorites(ctx context.Context) ([]models.FavoriteLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return append([]models.FavoriteLesson{}, s.favorites...), nil
}

// Downloads returns a copy of the downloads collection.
func (s *Store) Downloads(ctx context.Context) ([]models.DownloadedLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return append([]models.DownloadedLesson{}, s.downloads...), nil
}

// Statistics aggregates counts, total downloaded bytes (missing sizes count
// as zero), and the most recent activity records, newest first.
func (s *Store) Statistics(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	var bytes int64
	for _, d := range s.downloads {
		bytes += d.Size
	}

	n := len(s.activities)
	count := RecentActivityCount
	if count > n {
		count = n
	}
	recent := make([]models.ActivityRecord, 0, count)
	for i := n - 1; i >= n-count; i-- {
		recent = append(recent, s.activities[i])
	}

	return &Stats{
		CompletedCount:       len(s.completed),
		FavoriteCount:        len(s.favorites),
		DownloadCount:        len(s.downloads),
		TotalDownloadedBytes: bytes,
		RecentActivities:     recent,
	}, nil
}

// ClearAll removes all four collection keys. The deletes are independent;
// a partial failure leaves the remaining keys in place and is reported, but
// the in-memory mirror is reset either way so the store matches the keys
// that did get removed on next load.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []string{KeyCompleted, KeyFavorites, KeyDownloads, KeyActivities}
	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			if _, err := s.kv.Delete(ctx, key); err != nil {
				errs[i] = fmt.Errorf("clear %s: %w", key, err)
			}
		}(i, key)
	}
	wg.Wait()

	s.completed = nil
	s.favorites = nil
	s.downloads = nil
	s.activities = nil
	s.loaded = true

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
