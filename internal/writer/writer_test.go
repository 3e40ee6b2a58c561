package writer

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/dispatch"
	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/paper"
	"github.com/paperflow/arxetl/internal/table"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func setupWriter(t *testing.T) (*Writer, *table.Memory) {
	t.Helper()
	mem := table.NewMemory()
	if _, err := mem.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return New(mem, WithLogger(quietLogger()), WithClock(fixedClock)), mem
}

func TestUpsert_NewThenUpdated(t *testing.T) {
	w, mem := setupWriter(t)
	ctx := context.Background()
	p := samplePaper(t)

	outcome, _, err := w.Upsert(ctx, p)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if outcome != OutcomeNew {
		t.Errorf("first Upsert() = %v, want new", outcome)
	}

	outcome, _, err = w.Upsert(ctx, p)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Errorf("second Upsert() = %v, want updated", outcome)
	}
	if mem.Len() != 1 {
		t.Errorf("table has %d items, want 1", mem.Len())
	}
}

func TestUpsert_StoredItemDropsEmptyFields(t *testing.T) {
	w, mem := setupWriter(t)
	ctx := context.Background()

	p := paper.Paper{
		PaperID:  "1234.5678",
		Title:    "Foo Bar",
		Versions: []paper.Version{{Version: "v1", Created: "Mon, 1 Jan 2020 00:00:00 GMT"}},
	}
	p.Derive()
	if _, _, err := w.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	it, err := mem.Get(ctx, "1234.5678")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for _, key := range []string{"abstract", "doi", "journal_ref", "categories", "authors", "published_date", "update_frequency"} {
		if _, ok := it[key]; ok {
			t.Errorf("stored item has %q, want it dropped", key)
		}
	}
	if n, ok := it.Number("version_count"); !ok || n != "1" {
		t.Errorf("version_count = %q, want 1", n)
	}
	if it.Bool("is_published") {
		t.Error("is_published = true, want false")
	}
	if got := it.String("last_processed"); got != "2025-03-01T12:00:00Z" {
		t.Errorf("last_processed = %q, want clock time", got)
	}
}

func TestUpsert_ConversionWarningsDoNotFail(t *testing.T) {
	w, _ := setupWriter(t)
	nan := math.NaN()
	p := paper.Paper{PaperID: "x", Title: "T", UpdateFrequency: &nan}

	_, warnings, err := w.Upsert(context.Background(), p)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if len(warnings) != 1 || warnings[0].Field != "update_frequency" {
		t.Errorf("warnings = %v, want one for update_frequency", warnings)
	}
	if !errors.Is(warnings[0].Err, item.ErrNotFinite) {
		t.Errorf("warning error = %v, want ErrNotFinite", warnings[0].Err)
	}
}

// failingTable fails lookups for one key.
type failingTable struct {
	*table.Memory
	badKey string
}

func (f *failingTable) Get(ctx context.Context, id string) (item.Item, error) {
	if id == f.badKey {
		return nil, errors.New("access denied")
	}
	return f.Memory.Get(ctx, id)
}

func TestWriteBatch_RecordErrorsAreCounted(t *testing.T) {
	ft := &failingTable{Memory: table.NewMemory(), badKey: "b"}
	w := New(ft, WithLogger(quietLogger()), WithClock(fixedClock))

	batch := []paper.Paper{{PaperID: "a"}, {PaperID: "b"}, {PaperID: "c"}, {PaperID: ""}}
	counts, err := w.WriteBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if counts.New != 2 || counts.Failed != 2 {
		t.Errorf("WriteBatch() = %+v, want 2 new and 2 failed", counts)
	}
}

func TestWrite_ThroughDispatcher(t *testing.T) {
	w, mem := setupWriter(t)
	ctx := context.Background()

	var records []paper.Paper
	for i := 0; i < 60; i++ {
		records = append(records, paper.Paper{PaperID: string(rune('A'+i%26)) + string(rune('a'+i/26)), Title: "t"})
	}
	d := dispatch.New[paper.Paper](
		dispatch.Config{BatchSize: 25, Workers: 5, MaxInFlight: 5, Parallel: true},
		dispatch.WithLogger(quietLogger()),
		dispatch.WithSleep(func(time.Duration) {}),
	)

	res := w.Write(ctx, d, records)
	if res.New != 60 || res.Failed != 0 {
		t.Errorf("Write() = %+v, want 60 new", res.Counts)
	}
	if mem.Len() != 60 {
		t.Errorf("table has %d items, want 60", mem.Len())
	}

	res = w.Write(ctx, d, records)
	if res.Updated != 60 {
		t.Errorf("second Write() updated = %d, want 60", res.Updated)
	}
}
