// ABOUTME: Tests for the WordPress content client against an httptest server
// ABOUTME: Pagination totals, summaries extraction, and offline stale reads

package content_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sabeel/lessonstore/internal/cache"
	"github.com/sabeel/lessonstore/internal/content"
	"github.com/sabeel/lessonstore/internal/fetch"
	"github.com/sabeel/lessonstore/internal/kvstore"
)

const postsJSON = `[
	{"id": 11, "title": {"rendered": "First Lesson"}, "content": {"rendered": "<p>body</p>"}},
	{"id": 12, "title": {"rendered": "Second Lesson"}, "content": {"rendered": "<p>body</p>"}}
]`

func newTestClient(t *testing.T, baseURL string) *content.Client {
	t.Helper()
	store, err := kvstore.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c := cache.New(kvstore.NewPrefixed(store, kvstore.CachePrefix), cache.Config{
		Name:   "api",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f := fetch.NewFetcher(fetch.NewClient(0), c, fetch.FetcherConfig{
		KeepHeaders: content.KeepHeaders(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return content.New(f, baseURL, 20)
}

func TestPostsByCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("categories") != "7" || q.Get("page") != "2" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set(content.HeaderTotal, "42")
		w.Header().Set(content.HeaderTotalPages, "3")
		w.Write([]byte(postsJSON))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.PostsByCategory(context.Background(), "7", 2, false)
	if err != nil {
		t.Fatalf("PostsByCategory: %v", err)
	}
	if page.Total != 42 || page.TotalPages != 3 {
		t.Errorf("totals = %d/%d, want 42/3", page.Total, page.TotalPages)
	}

	summaries := page.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}
	if summaries[0].ID != "11" || summaries[0].Title != "First Lesson" {
		t.Errorf("first summary = %+v", summaries[0])
	}
}

func TestSearchEscapesQuery(t *testing.T) {
	var gotSearch atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSearch.Store(r.URL.Query().Get("search"))
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Search(context.Background(), "fiqh & usul", 1); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := gotSearch.Load(); got != "fiqh & usul" {
		t.Errorf("search param = %q", got)
	}
}

func TestCategoriesServedFromCacheWhenOffline(t *testing.T) {
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set(content.HeaderTotal, "2")
		w.Write([]byte(`[{"id": 1, "name": "Aqeedah"}, {"id": 2, "name": "Fiqh"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	if _, err := client.Categories(ctx, false); err != nil {
		t.Fatalf("warm fetch: %v", err)
	}

	failing.Store(true)

	// Force refresh bypasses the fresh cache read, hits the dead network,
	// and falls back to the stale entry.
	page, err := client.Categories(ctx, true)
	if err != nil {
		t.Fatalf("offline read: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("Total = %d, want 2 from stale entry", page.Total)
	}
}

func TestPostByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts/11" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"id": 11, "title": {"rendered": "First Lesson"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	body, err := client.Post(context.Background(), "11", false)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(body) == 0 {
		t.Error("empty body")
	}
}
