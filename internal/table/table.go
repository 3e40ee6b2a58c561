// Package table defines the key-value store that holds paper records.
//
// Every backend keys items by paper_id and maintains one secondary index
// on (primary_category, update_date).
package table

import (
	"context"
	"errors"

	"github.com/paperflow/arxetl/internal/item"
)

// Schema constants shared by all backends.
const (
	DefaultName = "arxiv-papers"

	KeyAttribute      = "paper_id"
	IndexName         = "CategoryIndex"
	IndexHashAttr     = "primary_category"
	IndexRangeAttr    = "update_date"
	DefaultReadUnits  = 5
	DefaultWriteUnits = 5
)

var (
	// ErrMissingKey is returned when an item has no paper_id.
	ErrMissingKey = errors.New("item has no paper_id")

	// ErrTableNotReady is returned when a table never became active.
	ErrTableNotReady = errors.New("table not ready")
)

// CategoryQuery selects items through the secondary index.
// From and To are inclusive YYYY-MM-DD bounds; empty means unbounded.
type CategoryQuery struct {
	Category   string
	From       string
	To         string
	Limit      int
	Descending bool
}

// Table is a key-value table of paper items.
type Table interface {
	// Ensure creates the table and its index when absent and waits until
	// it can be used. It reports whether the table was created.
	Ensure(ctx context.Context) (bool, error)

	// Get returns the item stored under paperID, or nil when there is none.
	Get(ctx context.Context, paperID string) (item.Item, error)

	// Put replaces the whole item.
	Put(ctx context.Context, it item.Item) error

	// QueryCategory reads the secondary index, ordered by update_date.
	QueryCategory(ctx context.Context, q CategoryQuery) ([]item.Item, error)

	// Scan visits every item until fn returns false.
	Scan(ctx context.Context, fn func(item.Item) bool) error

	Close() error
}

// KeyOf returns the paper_id of an item.
func KeyOf(it item.Item) (string, error) {
	key := it.String(KeyAttribute)
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}

// InRange reports whether date falls within the query bounds.
func (q CategoryQuery) InRange(date string) bool {
	if date == "" {
		return false
	}
	if q.From != "" && date < q.From {
		return false
	}
	if q.To != "" && date > q.To {
		return false
	}
	return true
}
