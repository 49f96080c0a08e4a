// ABOUTME: Tests for the download manager and filesystem blob store
// ABOUTME: Covers streaming-only mode, progress, cancellation, and cleanup

package downloads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sabeel/lessonstore/internal/kvstore"
	"github.com/sabeel/lessonstore/internal/models"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func (m *memKV) Contains(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memKV) Keys(_ context.Context) ([]string, error) { return nil, nil }
func (m *memKV) Clear(_ context.Context) error            { return nil }
func (m *memKV) Close() error                             { return nil }

var _ kvstore.Store = (*memKV)(nil)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func audioRef(id, url string) models.LessonRef {
	return models.LessonRef{
		ID:           id,
		Title:        "Lesson " + id,
		CategoryID:   "3",
		CategoryName: "Seerah",
		AudioURL:     url,
	}
}

func TestStreamingOnlyMode(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemKV(), nil, quiet())

	if !m.StreamingOnly() {
		t.Fatal("StreamingOnly() = false with nil blob store")
	}

	rec, err := m.Download(ctx, audioRef("l1", "https://cdn.example.com/l1.mp3"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !rec.Streaming() {
		t.Errorf("record has LocalPath %q, want streaming-only", rec.LocalPath)
	}
	if rec.URL != "https://cdn.example.com/l1.mp3" {
		t.Errorf("URL = %q", rec.URL)
	}

	files, err := m.Files(ctx)
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 1 {
		t.Errorf("len(Files()) = %d, want 1", len(files))
	}
}

func TestDownloadFetchesBlob(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("audio"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(newMemKV(), NewFSBlobStore(dir), quiet())

	rec, err := m.Download(ctx, audioRef("l1", srv.URL+"/l1.mp3"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if rec.Streaming() {
		t.Fatal("record is streaming-only, want local copy")
	}
	if rec.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", rec.Size, len(payload))
	}

	got, err := os.ReadFile(filepath.Join(dir, rec.LocalPath))
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("blob content does not match payload")
	}
}

func TestDownloadDuplicateReturnsExisting(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemKV(), nil, quiet())

	first, err := m.Download(ctx, audioRef("l1", "https://cdn.example.com/l1.mp3"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	second, err := m.Download(ctx, audioRef("l1", "https://cdn.example.com/other.mp3"))
	if err != nil {
		t.Fatalf("second Download() error = %v", err)
	}
	if second.URL != first.URL {
		t.Errorf("second download URL = %q, want existing %q", second.URL, first.URL)
	}

	files, _ := m.Files(ctx)
	if len(files) != 1 {
		t.Errorf("len(Files()) = %d, want 1", len(files))
	}
}

func TestProgressListenerDroppedAfterCompletion(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("x"), 200*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	m := NewManager(newMemKV(), NewFSBlobStore(t.TempDir()), quiet())

	var mu sync.Mutex
	var last int64
	calls := 0
	m.Subscribe("l1", func(received, total int64) {
		mu.Lock()
		defer mu.Unlock()
		last = received
		calls++
	})

	if _, err := m.Download(ctx, audioRef("l1", srv.URL+"/l1.mp3")); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	mu.Lock()
	if calls == 0 {
		t.Error("progress listener never invoked")
	}
	if last != int64(len(payload)) {
		t.Errorf("final progress = %d, want %d", last, len(payload))
	}
	mu.Unlock()

	if m.listeners.Size() != 0 {
		t.Errorf("listener registry size = %d after completion, want 0", m.listeners.Size())
	}
}

func TestCancelAbortsDownload(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("y"), 100*1024))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	dir := t.TempDir()
	m := NewManager(newMemKV(), NewFSBlobStore(dir), quiet())

	started := make(chan struct{})
	m.Subscribe("l1", func(received, total int64) {
		select {
		case <-started:
		default:
			close(started)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Download(context.Background(), audioRef("l1", srv.URL+"/l1.mp3"))
		errCh <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("download never reported progress")
	}
	if !m.Cancel("l1") {
		t.Fatal("Cancel() = false for in-flight download")
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Download() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("download did not abort after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, "l1.mp3.partial")); !os.IsNotExist(err) {
		t.Error("partial file survived cancellation")
	}
	files, _ := m.Files(context.Background())
	if len(files) != 0 {
		t.Errorf("len(Files()) = %d after cancel, want 0", len(files))
	}
}

func TestSecondDownloadForInFlightLessonRejected(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("z"), 100*1024))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	m := NewManager(newMemKV(), NewFSBlobStore(t.TempDir()), quiet())

	started := make(chan struct{})
	m.Subscribe("l1", func(received, total int64) {
		select {
		case <-started:
		default:
			close(started)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Download(context.Background(), audioRef("l1", srv.URL+"/l1.mp3"))
		errCh <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("download never reported progress")
	}

	if _, err := m.Download(context.Background(), audioRef("l1", srv.URL+"/l1.mp3")); !errors.Is(err, ErrInProgress) {
		t.Errorf("second Download() error = %v, want ErrInProgress", err)
	}

	if !m.Cancel("l1") {
		t.Fatal("Cancel() = false for in-flight download")
	}
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("download did not abort after cancel")
	}
}

func TestConcurrentStreamingDownloadsKeepOneRecord(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMemKV(), nil, quiet())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Download(ctx, audioRef("l1", "https://cdn.example.com/l1.mp3"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Download #%d error = %v", i, err)
		}
	}
	files, err := m.Files(ctx)
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if len(files) != 1 {
		t.Errorf("len(Files()) = %d after concurrent downloads, want 1", len(files))
	}
}

func TestCancelUnknownDownload(t *testing.T) {
	m := NewManager(newMemKV(), nil, quiet())
	if m.Cancel("nope") {
		t.Error("Cancel(unknown) = true, want false")
	}
}

func TestRemoveDeletesBlob(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(newMemKV(), NewFSBlobStore(dir), quiet())

	rec, err := m.Download(ctx, audioRef("l1", srv.URL+"/l1.mp3"))
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	full := filepath.Join(dir, rec.LocalPath)
	if _, err := os.Stat(full); err != nil {
		t.Fatalf("blob missing before remove: %v", err)
	}

	removed, err := m.Remove(ctx, "l1")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Fatal("Remove() = false, want true")
	}
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Error("blob survived Remove")
	}
	if rec, _ := m.Get(ctx, "l1"); rec != nil {
		t.Error("record survived Remove")
	}
}

func TestFSBlobStoreWriteStatRemove(t *testing.T) {
	s := NewFSBlobStore(t.TempDir())

	if err := s.Write("a/b.bin", []byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	size, exists, err := s.Stat("a/b.bin")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !exists || size != 5 {
		t.Errorf("Stat() = %d, %v, want 5, true", size, exists)
	}

	if err := s.Remove("a/b.bin"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, exists, _ := s.Stat("a/b.bin"); exists {
		t.Error("blob exists after Remove")
	}
	if err := s.Remove("a/b.bin"); err != nil {
		t.Errorf("Remove(missing) error = %v, want nil", err)
	}
}

func TestLocalNameExtension(t *testing.T) {
	if got := localName("l1", "https://cdn.example.com/audio/l1.m4a?token=x"); got != "l1.m4a" {
		t.Errorf("localName = %q, want l1.m4a", got)
	}
	if got := localName("l2", "not a url at all \x7f"); got != "l2.mp3" {
		t.Errorf("localName fallback = %q, want l2.mp3", got)
	}
}
