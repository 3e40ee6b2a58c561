// Package rawstore stores harvested files and columnar output in a local
// directory or an S3 bucket behind one interface.
package rawstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a flat object store addressed by slash-separated keys.
type Store interface {
	// List returns the keys that start with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Get returns the object body.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes body under key, replacing any existing object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Delete removes keys and returns how many were deleted.
	Delete(ctx context.Context, keys []string) (int, error)

	// Location describes where a key lives, for logs and reports.
	Location(key string) string
}

// DeletePrefix removes every object under prefix.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return s.Delete(ctx, keys)
}
