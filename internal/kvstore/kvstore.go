// ABOUTME: Backend-agnostic key/value store interface and namespace wrapper
// ABOUTME: All operations are context-aware and return explicit errors

package kvstore

import (
	"context"
	"errors"
	"strings"
	"syscall"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("kvstore: store is closed")

// Store is the contract shared by all key/value backends. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get retrieves the value for key. The second return is false when the
	// key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set inserts or overwrites the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Returns true when a value was actually removed.
	Delete(ctx context.Context, key string) (bool, error)

	// Contains reports whether key exists. Fallback backends may answer
	// conservatively (false) instead of returning an error.
	Contains(ctx context.Context, key string) (bool, error)

	// Keys returns all keys in the store. Fallback backends may answer
	// conservatively (empty) instead of returning an error.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key in the store.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Namespace key prefixes. The three namespaces share one underlying engine
// but are logically disjoint stores with independent capacity budgets.
const (
	UserPrefix    = "user-storage:"
	CachePrefix   = "api_cache_"
	OfflinePrefix = "offline_cache_"
)

// Prefixed is a namespace view over a Store: every key is transparently
// prefixed on write and filtered/stripped on enumeration. Clear only removes
// keys in the namespace.
type Prefixed struct {
	base   Store
	prefix string
}

// NewPrefixed wraps base with the given key prefix.
func NewPrefixed(base Store, prefix string) *Prefixed {
	return &Prefixed{base: base, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.base.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.base.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Delete(ctx context.Context, key string) (bool, error) {
	return p.base.Delete(ctx, p.prefix+key)
}

func (p *Prefixed) Contains(ctx context.Context, key string) (bool, error) {
	return p.base.Contains(ctx, p.prefix+key)
}

func (p *Prefixed) Keys(ctx context.Context) ([]string, error) {
	all, err := p.base.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, p.prefix) {
			keys = append(keys, strings.TrimPrefix(k, p.prefix))
		}
	}
	return keys, nil
}

func (p *Prefixed) Clear(ctx context.Context) error {
	keys, err := p.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := p.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op: the underlying store is shared between namespaces and
// owned by whoever opened it.
func (p *Prefixed) Close() error {
	return nil
}

// IsStorageFull reports whether err is a backend disk-full signal. The cache
// layer uses this to trigger emergency cleanup instead of surfacing the write
// failure.
func IsStorageFull(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left on device") ||
		strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "disk quota exceeded")
}
