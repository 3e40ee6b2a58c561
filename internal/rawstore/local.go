package rawstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Local stores objects as files below a root directory.
type Local struct {
	root string
}

// NewLocal returns a store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// Location implements Store.
func (l *Local) Location(key string) string {
	return l.path(key)
}

// List implements Store.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	// Walk the deepest directory that fully contains the prefix.
	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir = filepath.ToSlash(filepath.Dir(dir))
		if dir == "." {
			dir = ""
		}
	}
	start := l.path(dir)

	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", start, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements Store.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Put implements Store. The content type is not recorded on disk.
func (l *Local) Put(ctx context.Context, key string, body []byte, contentType string) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := os.WriteFile(p, body, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete implements Store. Directories left empty are removed.
func (l *Local) Delete(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	dirs := make(map[string]bool)
	for _, key := range keys {
		p := l.path(key)
		if err := os.Remove(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return deleted, fmt.Errorf("deleting %s: %w", key, err)
		}
		deleted++
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		// Fails harmlessly when the directory still has entries.
		_ = os.Remove(dir)
	}
	return deleted, nil
}
