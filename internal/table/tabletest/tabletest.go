// Package tabletest holds the behavior every table.Table backend must share.
package tabletest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/table"
)

// Sample returns a stored paper item.
func Sample(id, category, updateDate string) item.Item {
	it := item.Item{
		"paper_id":      id,
		"title":         "Paper " + id,
		"categories":    []any{category, "math.CO"},
		"version_count": item.Number("2"),
		"is_published":  true,
		"versions": []any{
			map[string]any{"version": "v1", "created": "Mon, 2 Apr 2007 19:18:42 GMT"},
		},
	}
	if category != "" {
		it["primary_category"] = category
	}
	if updateDate != "" {
		it["update_date"] = updateDate
	}
	return it
}

// Run exercises a backend. open must return an empty table that has not
// been ensured yet.
func Run(t *testing.T, open func(t *testing.T) table.Table) {
	t.Run("Ensure", func(t *testing.T) {
		tbl := open(t)
		ctx := context.Background()
		created, err := tbl.Ensure(ctx)
		if err != nil {
			t.Fatalf("Ensure() error = %v", err)
		}
		if !created {
			t.Error("first Ensure() created = false, want true")
		}
		created, err = tbl.Ensure(ctx)
		if err != nil {
			t.Fatalf("second Ensure() error = %v", err)
		}
		if created {
			t.Error("second Ensure() created = true, want false")
		}
	})

	t.Run("GetPut", func(t *testing.T) {
		tbl := ensured(t, open)
		ctx := context.Background()

		got, err := tbl.Get(ctx, "0704.0001")
		if err != nil {
			t.Fatalf("Get() on missing key error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() on missing key = %v, want nil", got)
		}

		want := Sample("0704.0001", "hep-ph", "2008-11-13")
		if err := tbl.Put(ctx, want); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err = tbl.Get(ctx, "0704.0001")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}

		// Put replaces the whole item.
		replacement := item.Item{"paper_id": "0704.0001", "title": "Only a title"}
		if err := tbl.Put(ctx, replacement); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, _ = tbl.Get(ctx, "0704.0001")
		if diff := cmp.Diff(replacement, got); diff != "" {
			t.Errorf("Get() after replace mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("PutMissingKey", func(t *testing.T) {
		tbl := ensured(t, open)
		if err := tbl.Put(context.Background(), item.Item{"title": "x"}); err == nil {
			t.Error("Put() without paper_id succeeded")
		}
	})

	t.Run("QueryCategory", func(t *testing.T) {
		tbl := ensured(t, open)
		ctx := context.Background()
		for i, date := range []string{"2024-01-03", "2024-01-01", "2024-01-02", "2024-02-01"} {
			if err := tbl.Put(ctx, Sample(fmt.Sprintf("cs.%d", i), "cs.AI", date)); err != nil {
				t.Fatal(err)
			}
		}
		if err := tbl.Put(ctx, Sample("other", "math.CO", "2024-01-02")); err != nil {
			t.Fatal(err)
		}
		if err := tbl.Put(ctx, Sample("undated", "cs.AI", "")); err != nil {
			t.Fatal(err)
		}

		got, err := tbl.QueryCategory(ctx, table.CategoryQuery{Category: "cs.AI", From: "2024-01-01", To: "2024-01-31"})
		if err != nil {
			t.Fatalf("QueryCategory() error = %v", err)
		}
		if diff := cmp.Diff([]string{"cs.1", "cs.2", "cs.0"}, ids(got)); diff != "" {
			t.Errorf("QueryCategory() mismatch (-want +got):\n%s", diff)
		}

		got, err = tbl.QueryCategory(ctx, table.CategoryQuery{Category: "cs.AI", Limit: 2, Descending: true})
		if err != nil {
			t.Fatalf("QueryCategory() error = %v", err)
		}
		if diff := cmp.Diff([]string{"cs.3", "cs.0"}, ids(got)); diff != "" {
			t.Errorf("QueryCategory(desc, limit 2) mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Scan", func(t *testing.T) {
		tbl := ensured(t, open)
		ctx := context.Background()
		for _, id := range []string{"b", "a", "c"} {
			if err := tbl.Put(ctx, Sample(id, "cs.AI", "2024-01-01")); err != nil {
				t.Fatal(err)
			}
		}
		seen := make(map[string]bool)
		if err := tbl.Scan(ctx, func(it item.Item) bool {
			seen[it.String("paper_id")] = true
			return true
		}); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if len(seen) != 3 {
			t.Errorf("Scan() visited %v, want 3 items", seen)
		}

		n := 0
		if err := tbl.Scan(ctx, func(item.Item) bool {
			n++
			return false
		}); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Scan() visited %d items after stop, want 1", n)
		}
	})
}

func ensured(t *testing.T, open func(t *testing.T) table.Table) table.Table {
	t.Helper()
	tbl := open(t)
	if _, err := tbl.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return tbl
}

func ids(items []item.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.String("paper_id")
	}
	return out
}
