// Package columnar writes typed rows as parquet files under a
// year=/month=/day= partition layout.
package columnar

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/rawstore"
)

// ContentType is the media type of written files.
const ContentType = "application/vnd.apache.parquet"

// Partition returns the partition directory for t.
func Partition(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("year=%d/month=%02d/day=%02d", t.Year(), int(t.Month()), t.Day())
}

// FileName returns the name of the n-th file in a partition, counting from 1.
func FileName(n int) string {
	return fmt.Sprintf("part-%05d.parquet", n)
}

// Encode serializes rows as one parquet file.
func Encode[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf)
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads every row of a parquet file.
func Decode[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading parquet rows: %w", err)
	}
	return rows, nil
}

type options struct {
	log log.FieldLogger
}

// Option configures a Writer.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// Writer stores parquet files under a prefix of a store. File numbers are
// allocated per partition, so concurrent writes to different partitions are
// safe, and so are concurrent writes to the same one.
type Writer[T any] struct {
	store  rawstore.Store
	prefix string
	log    log.FieldLogger

	mu       sync.Mutex
	counters map[string]int
	files    []string
}

// NewWriter creates a Writer rooted at prefix. An empty prefix writes at the
// root of the store.
func NewWriter[T any](store rawstore.Store, prefix string, opts ...Option) *Writer[T] {
	o := options{log: log.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Writer[T]{
		store:    store,
		prefix:   prefix,
		log:      o.log,
		counters: make(map[string]int),
	}
}

func (w *Writer[T]) next(partition string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counters[partition]++
	return path.Join(w.prefix, partition, FileName(w.counters[partition]))
}

// Write stores rows as the next file of partition and returns its location.
// Writing no rows is a no-op.
func (w *Writer[T]) Write(ctx context.Context, partition string, rows []T) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	data, err := Encode(rows)
	if err != nil {
		return "", err
	}
	key := w.next(partition)
	if err := w.store.Put(ctx, key, data, ContentType); err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}

	loc := w.store.Location(key)
	w.mu.Lock()
	w.files = append(w.files, loc)
	w.mu.Unlock()

	w.log.WithFields(log.Fields{
		"file": loc,
		"rows": len(rows),
	}).Info("wrote parquet file")
	return loc, nil
}

// Files returns the locations written so far.
func (w *Writer[T]) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}
