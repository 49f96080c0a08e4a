// ABOUTME: Typed fetch failures with human-readable categories
// ABOUTME: Callers branch on category, never on backend or transport identity

package fetch

import (
	"errors"
	"fmt"
	"os"

	"github.com/sabeel/lessonstore/internal/kvstore"
)

// Category is the coarse failure class surfaced to callers.
type Category string

const (
	CategoryNetwork     Category = "network"
	CategoryStorageFull Category = "storage-full"
	CategoryPermission  Category = "permission"
	CategoryUnknown     Category = "unknown"
)

// Error is a classified fetch failure.
type Error struct {
	Category Category
	URL      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify returns the failure category for err.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}
	switch {
	case kvstore.IsStorageFull(err):
		return CategoryStorageFull
	case os.IsPermission(err):
		return CategoryPermission
	default:
		return CategoryUnknown
	}
}
