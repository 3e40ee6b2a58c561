package harvest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/oaipmh"
	"github.com/paperflow/arxetl/internal/raw"
	"github.com/paperflow/arxetl/internal/rawstore"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeHarvester struct {
	records  map[raw.Format][]oaipmh.Record
	fail     map[raw.Format]error
	requests []oaipmh.Request
}

func (f *fakeHarvester) Harvest(ctx context.Context, req oaipmh.Request, fn func(oaipmh.Record) error) error {
	f.requests = append(f.requests, req)
	for _, r := range f.records[req.MetadataPrefix] {
		if err := fn(r); err != nil {
			return err
		}
	}
	return f.fail[req.MetadataPrefix]
}

func arxivRec(id, datestamp string) oaipmh.Record {
	return oaipmh.Record{
		Header:   oaipmh.Header{Identifier: "oai:arXiv.org:" + id, Datestamp: datestamp},
		Metadata: oaipmh.Metadata{ArXiv: &oaipmh.ArXiv{ID: id, Title: "T " + id}},
	}
}

func rawRec(id, datestamp string) oaipmh.Record {
	return oaipmh.Record{
		Header:   oaipmh.Header{Identifier: "oai:arXiv.org:" + id, Datestamp: datestamp},
		Metadata: oaipmh.Metadata{ArXivRaw: &oaipmh.ArXivRaw{ID: id, Submitter: "x <x@mit.edu>"}},
	}
}

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan3 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)

func TestCollect(t *testing.T) {
	store := rawstore.NewLocal(t.TempDir())
	ctx := context.Background()
	// Stale data for a day in range is removed first.
	if err := store.Put(ctx, raw.Key(raw.FormatArXiv, "2024-01-01", 7), []byte(`{"id":"stale"}`), raw.ContentType); err != nil {
		t.Fatal(err)
	}

	fake := &fakeHarvester{records: map[raw.Format][]oaipmh.Record{
		raw.FormatArXiv: {
			arxivRec("a", "2024-01-01"),
			arxivRec("b", "2024-01-01"),
			arxivRec("c", "2024-01-01"),
			arxivRec("d", "2024-01-02"),
			arxivRec("late", "2024-01-03"),
			arxivRec("nostamp", ""),
			{Header: oaipmh.Header{Status: "deleted", Datestamp: "2024-01-01"}},
		},
		raw.FormatArXivRaw: {
			rawRec("a", "2024-01-01"),
		},
	}}

	c := New(fake, store, WithLogger(quietLogger()), WithBatchSize(2))
	stats, err := c.Collect(ctx, jan1, jan3)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if stats.Total != 8 || stats.Successful != 5 || stats.Failed != 1 || stats.Deleted != 1 {
		t.Errorf("stats = %+v", stats)
	}

	for _, req := range fake.requests {
		if !req.From.Equal(jan1) || req.Until.Format("2006-01-02") != "2024-01-02" {
			t.Errorf("request range = %v..%v", req.From, req.Until)
		}
	}

	keys, err := store.List(ctx, "raw/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"raw/arXiv/2024-01-01/0001.json",
		"raw/arXiv/2024-01-01/0002.json",
		"raw/arXiv/2024-01-02/0001.json",
		"raw/arXivRaw/2024-01-01/0001.json",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("stored keys mismatch (-want +got):\n%s", diff)
	}
	if stats.Files != 4 {
		t.Errorf("Files = %d, want 4", stats.Files)
	}

	data, err := store.Get(ctx, "raw/arXiv/2024-01-01/0001.json")
	if err != nil {
		t.Fatal(err)
	}
	records, bad, err := raw.Decode(bytes.NewReader(data), raw.FormatArXiv)
	if err != nil || len(bad) != 0 {
		t.Fatalf("Decode() = %v, %v", bad, err)
	}
	if len(records) != 2 || records[0].ID != "a" || records[1].ID != "b" {
		t.Errorf("first file records = %+v", records)
	}
}

func TestCollect_FormatFailureKeepsGoing(t *testing.T) {
	store := rawstore.NewLocal(t.TempDir())
	boom := errors.New("connection reset")
	fake := &fakeHarvester{
		records: map[raw.Format][]oaipmh.Record{
			raw.FormatArXiv:    {arxivRec("a", "2024-01-01")},
			raw.FormatArXivRaw: {rawRec("a", "2024-01-01")},
		},
		fail: map[raw.Format]error{raw.FormatArXiv: boom},
	}

	stats, err := New(fake, store, WithLogger(quietLogger())).Collect(context.Background(), jan1, jan3)
	if !errors.Is(err, boom) {
		t.Fatalf("Collect() error = %v, want %v", err, boom)
	}
	if len(fake.requests) != 2 {
		t.Errorf("requests = %d, want 2", len(fake.requests))
	}
	// Records harvested before the failure are still saved.
	if stats.Files != 2 {
		t.Errorf("Files = %d, want 2", stats.Files)
	}
}

func TestCollect_InvertedRange(t *testing.T) {
	c := New(&fakeHarvester{}, rawstore.NewLocal(t.TempDir()), WithLogger(quietLogger()))
	if _, err := c.Collect(context.Background(), jan3, jan1); err == nil {
		t.Error("Collect() with inverted range succeeded")
	}
}
