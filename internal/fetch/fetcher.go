// ABOUTME: Read-through fetch coordinator over the bounded cache
// ABOUTME: Freshness-bounded cache reads, write-through, stale fallback on failure

package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sabeel/lessonstore/internal/cache"
)

// DefaultTTL is the write-through TTL for cached responses.
const DefaultTTL = 24 * time.Hour

// Response is what FetchWithCache returns and what gets persisted in the
// cache: the opaque body plus the handful of response headers worth keeping.
type Response struct {
	Body    json.RawMessage   `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Header returns a kept header value, or empty.
func (r *Response) Header(name string) string {
	return r.Headers[name]
}

// Options tunes a single FetchWithCache call.
type Options struct {
	// MaxAge bounds the cache read: an entry older than MaxAge is treated
	// as a miss even if its stored TTL has not elapsed. Zero means any
	// unexpired entry is acceptable.
	MaxAge time.Duration

	// ForceRefresh skips the cache read entirely. The network result still
	// overwrites the cached entry.
	ForceRefresh bool
}

// Fetcher coordinates the remote API, the response cache, and the stale
// fallback. Concurrent fetches for the same URL are not deduplicated; each
// proceeds independently and the last write wins.
type Fetcher struct {
	client *Client
	cache  *cache.Cache

	// ttl is the write-through TTL applied to fresh responses.
	ttl time.Duration

	// keepHeaders selects which response headers are persisted alongside
	// the body (pagination totals and the like).
	keepHeaders []string

	log *slog.Logger
}

// FetcherConfig configures a Fetcher. Zero values take defaults.
type FetcherConfig struct {
	TTL         time.Duration
	KeepHeaders []string
	Logger      *slog.Logger
}

// NewFetcher builds a coordinator over client and c.
func NewFetcher(client *Client, c *cache.Cache, cfg FetcherConfig) *Fetcher {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		client:      client,
		cache:       c,
		ttl:         cfg.TTL,
		keepHeaders: cfg.KeepHeaders,
		log:         cfg.Logger,
	}
}

// FetchWithCache resolves url through the cache-then-network-then-stale
// chain:
//
//  1. Unless ForceRefresh, a cache entry no older than MaxAge is returned
//     without network I/O.
//  2. Otherwise the URL is fetched. A successful fetch is written through to
//     the cache (overwriting any previous entry for the URL) and returned.
//  3. On network failure, any cached value for the URL (regardless of age)
//     is returned instead. This path never fails; the fetch error only
//     propagates when no stale copy exists.
func (f *Fetcher) FetchWithCache(ctx context.Context, url string, opts Options) (*Response, error) {
	key := url

	if !opts.ForceRefresh {
		var cached Response
		if f.cache.GetWithin(ctx, key, opts.MaxAge, &cached) {
			return &cached, nil
		}
	}

	result, err := f.client.Fetch(ctx, url)
	if err != nil {
		var stale Response
		if f.cache.GetStale(ctx, key, &stale) {
			f.log.Info("network fetch failed, serving stale cache", "url", url, "error", err)
			return &stale, nil
		}
		return nil, err
	}

	resp := &Response{Body: result.Body}
	for _, name := range f.keepHeaders {
		if v := result.Header.Get(name); v != "" {
			if resp.Headers == nil {
				resp.Headers = map[string]string{}
			}
			resp.Headers[name] = v
		}
	}

	f.cache.Set(ctx, key, resp, f.ttl)
	return resp, nil
}
