// ABOUTME: Tests for key/value backends, namespace views, and backend selection
// ABOUTME: Both engines run the same contract checks via a shared helper

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"
)

func newBadger(t *testing.T) Store {
	t.Helper()
	s, err := NewBadgerStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newSQLite(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fallback.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func runContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Missing key
	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}

	// Round-trip
	if err := s.Set(ctx, "a", []byte("alpha")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || string(v) != "alpha" {
		t.Fatalf("Get a: %q ok=%v err=%v", v, ok, err)
	}

	// Overwrite
	if err := s.Set(ctx, "a", []byte("alpha2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, _ = s.Get(ctx, "a")
	if string(v) != "alpha2" {
		t.Errorf("overwrite: got %q", v)
	}

	// Contains
	if ok, _ := s.Contains(ctx, "a"); !ok {
		t.Error("Contains a = false")
	}
	if ok, _ := s.Contains(ctx, "missing"); ok {
		t.Error("Contains missing = true")
	}

	// Keys
	if err := s.Set(ctx, "b", []byte("beta")); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys = %v", keys)
	}

	// Delete
	removed, err := s.Delete(ctx, "a")
	if err != nil || !removed {
		t.Fatalf("Delete a: removed=%v err=%v", removed, err)
	}
	if removed, _ := s.Delete(ctx, "a"); removed {
		t.Error("second Delete reported removal")
	}

	// Clear
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	keys, _ = s.Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("Keys after Clear = %v", keys)
	}
}

func TestBadgerStoreContract(t *testing.T) {
	runContract(t, newBadger(t))
}

func TestSQLiteStoreContract(t *testing.T) {
	runContract(t, newSQLite(t))
}

func TestPrefixedIsolation(t *testing.T) {
	base := newSQLite(t)
	ctx := context.Background()

	user := NewPrefixed(base, UserPrefix)
	cache := NewPrefixed(base, CachePrefix)

	if err := user.Set(ctx, "k", []byte("user value")); err != nil {
		t.Fatalf("user Set: %v", err)
	}
	if err := cache.Set(ctx, "k", []byte("cache value")); err != nil {
		t.Fatalf("cache Set: %v", err)
	}

	v, ok, _ := user.Get(ctx, "k")
	if !ok || string(v) != "user value" {
		t.Errorf("user Get = %q ok=%v", v, ok)
	}
	v, ok, _ = cache.Get(ctx, "k")
	if !ok || string(v) != "cache value" {
		t.Errorf("cache Get = %q ok=%v", v, ok)
	}

	// Keys are stripped and filtered per namespace
	keys, _ := user.Keys(ctx)
	if len(keys) != 1 || keys[0] != "k" {
		t.Errorf("user Keys = %v", keys)
	}

	// Clearing one namespace leaves the other intact
	if err := user.Clear(ctx); err != nil {
		t.Fatalf("user Clear: %v", err)
	}
	if ok, _ := user.Contains(ctx, "k"); ok {
		t.Error("user key survived Clear")
	}
	if ok, _ := cache.Contains(ctx, "k"); !ok {
		t.Error("cache key removed by user Clear")
	}
}

func TestOpenSelectsPrimary(t *testing.T) {
	stores, err := Open(t.TempDir(), "", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stores.Close()

	if stores.Backend != BackendBadger {
		t.Errorf("Backend = %q, want %q", stores.Backend, BackendBadger)
	}
}

func TestOpenFallsBackToSQLite(t *testing.T) {
	dir := t.TempDir()
	// Occupy the badger directory path with a regular file to force a
	// primary construction failure.
	if err := os.WriteFile(filepath.Join(dir, badgerDirName), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	stores, err := Open(dir, "", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stores.Close()

	if stores.Backend != BackendSQLite {
		t.Fatalf("Backend = %q, want %q", stores.Backend, BackendSQLite)
	}

	// The substitute works behind the same interface
	ctx := context.Background()
	if err := stores.User.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("fallback Set: %v", err)
	}
	if v, ok, _ := stores.User.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Errorf("fallback Get = %q ok=%v", v, ok)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := NewBadgerStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	s.Close()

	if err := s.Set(context.Background(), "k", []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
}

func TestIsStorageFull(t *testing.T) {
	if !IsStorageFull(syscall.ENOSPC) {
		t.Error("ENOSPC not detected")
	}
	if !IsStorageFull(fmt.Errorf("set %q: %w", "k", syscall.ENOSPC)) {
		t.Error("wrapped ENOSPC not detected")
	}
	if !IsStorageFull(errors.New("database or disk is full")) {
		t.Error("sqlite full message not detected")
	}
	if IsStorageFull(errors.New("permission denied")) {
		t.Error("unrelated error detected as storage full")
	}
	if IsStorageFull(nil) {
		t.Error("nil detected as storage full")
	}
}
