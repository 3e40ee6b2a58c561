package table

import (
	"context"
	"sort"
	"sync"

	"github.com/paperflow/arxetl/internal/item"
)

// Memory is an in-process Table used for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	created bool
	items   map[string]item.Item
}

// NewMemory returns an empty table that does not exist until Ensure is called.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]item.Item)}
}

// Ensure implements Table.
func (m *Memory) Ensure(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return false, nil
	}
	m.created = true
	return true, nil
}

// Get implements Table.
func (m *Memory) Get(ctx context.Context, paperID string) (item.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[paperID]
	if !ok {
		return nil, nil
	}
	return it, nil
}

// Put implements Table.
func (m *Memory) Put(ctx context.Context, it item.Item) error {
	key, err := KeyOf(it)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = it
	return nil
}

// QueryCategory implements Table.
func (m *Memory) QueryCategory(ctx context.Context, q CategoryQuery) ([]item.Item, error) {
	m.mu.Lock()
	var out []item.Item
	for _, it := range m.items {
		if it.String(IndexHashAttr) == q.Category && q.InRange(it.String(IndexRangeAttr)) {
			out = append(out, it)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].String(IndexRangeAttr), out[j].String(IndexRangeAttr)
		if a == b {
			return out[i].String(KeyAttribute) < out[j].String(KeyAttribute)
		}
		if q.Descending {
			return a > b
		}
		return a < b
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Scan implements Table. Items are visited in key order.
func (m *Memory) Scan(ctx context.Context, fn func(item.Item) bool) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]item.Item, len(keys))
	for i, k := range keys {
		items[i] = m.items[k]
	}
	m.mu.Unlock()

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(it) {
			return nil
		}
	}
	return nil
}

// Len returns the number of stored items.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close implements Table.
func (m *Memory) Close() error { return nil }
