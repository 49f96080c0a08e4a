// ABOUTME: Blob storage capability interface and its filesystem implementation
// ABOUTME: Streams remote media to disk with progress callbacks and cancellation

package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ProgressFunc receives byte progress during a transfer. total is -1 when the
// server did not send a Content-Length.
type ProgressFunc func(received, total int64)

// BlobStore is the device storage capability for downloaded media. A nil
// BlobStore means the capability is unavailable on this platform and the
// manager runs in streaming-only mode.
type BlobStore interface {
	// Write stores data at path, creating parent directories as needed.
	Write(path string, data []byte) error
	// Stat reports the size of the blob at path and whether it exists.
	Stat(path string) (size int64, exists bool, err error)
	// Remove deletes the blob at path. Removing a missing blob is not an error.
	Remove(path string) error
	// DownloadToFile streams url to path, invoking onProgress as bytes
	// arrive. Returns the byte count written. A partial file is cleaned up
	// on failure or cancellation.
	DownloadToFile(ctx context.Context, url, path string, onProgress ProgressFunc) (int64, error)
}

const downloadTimeout = 10 * time.Minute

// progressInterval limits how much must arrive between onProgress calls.
const progressInterval = 64 * 1024

// FSBlobStore stores blobs under a root directory on the local filesystem.
type FSBlobStore struct {
	root   string
	client *http.Client
}

// NewFSBlobStore creates a filesystem blob store rooted at dir.
func NewFSBlobStore(dir string) *FSBlobStore {
	return &FSBlobStore{
		root:   dir,
		client: &http.Client{Timeout: downloadTimeout},
	}
}

// Root returns the store's base directory.
func (s *FSBlobStore) Root() string { return s.root }

func (s *FSBlobStore) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}

func (s *FSBlobStore) Write(path string, data []byte) error {
	full := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (s *FSBlobStore) Stat(path string) (int64, bool, error) {
	info, err := os.Stat(s.abs(path))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), true, nil
}

func (s *FSBlobStore) Remove(path string) error {
	if err := os.Remove(s.abs(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *FSBlobStore) DownloadToFile(ctx context.Context, url, path string, onProgress ProgressFunc) (int64, error) {
	full := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, fmt.Errorf("create blob directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: server returned %d", url, resp.StatusCode)
	}

	tmp := full + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create download file: %w", err)
	}

	written, err := copyWithProgress(ctx, f, resp.Body, resp.ContentLength, onProgress)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("finalize download: %w", err)
	}
	return written, nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, 32*1024)
	var written, sinceReport int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			sinceReport += int64(n)
			if onProgress != nil && sinceReport >= progressInterval {
				onProgress(written, total)
				sinceReport = 0
			}
		}
		if rerr == io.EOF {
			if onProgress != nil {
				onProgress(written, total)
			}
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
