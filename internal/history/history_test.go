package history

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/columnar"
	"github.com/paperflow/arxetl/internal/metrics"
	"github.com/paperflow/arxetl/internal/quality"
	"github.com/paperflow/arxetl/internal/raw"
	"github.com/paperflow/arxetl/internal/rawstore"
)

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func fixedNow() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func ptr(f float64) *float64 { return &f }

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		rec  raw.Record
		want Row
	}{
		{
			name: "arXiv",
			rec: raw.Record{
				Format:        raw.FormatArXiv,
				ID:            " 0811.1234 ",
				Title:         " A title ",
				Abstract:      "An abstract",
				Categories:    "hep-ph",
				JournalRef:    "Phys. Rev. (2009)",
				UpdateDate:    "2008-11-13",
				AuthorsParsed: [][]string{{"Balázs", "C.", ""}, {"Berger", "E. L.", ""}, {"broken"}},
			},
			want: Row{
				ID:                      "0811.1234",
				Format:                  "arXiv",
				Title:                   "A title",
				Abstract:                "An abstract",
				Categories:              "hep-ph",
				SubmittedDate:           "2008-11-13",
				LastUpdatedDate:         "2008-11-13",
				VersionCount:            1,
				Authors:                 "Balázs, C.; Berger, E. L.",
				JournalRef:              "Phys. Rev. (2009)",
				IsPublished:             true,
				SubmissionToPublication: ptr(230),
			},
		},
		{
			name: "arXivRaw",
			rec: raw.Record{
				Format:    raw.FormatArXivRaw,
				ID:        "0704.0001",
				Submitter: "Pavel Nadolsky <nadolsky@pa.msu.edu>",
				Authors:   "C. Balázs, E. L. Berger",
				Versions: []raw.Version{
					{Version: "v1", Created: "Mon, 2 Apr 2007 19:18:42 GMT"},
					{Version: "v2", Created: "Tue, 24 Jul 2007 20:10:27 GMT"},
					{Version: "v3", Created: "Wed, 1 Aug 2007 10:00:00 GMT"},
				},
			},
			want: Row{
				ID:              "0704.0001",
				Format:          "arXivRaw",
				SubmittedDate:   "2007-04-02",
				LastUpdatedDate: "2007-08-01",
				VersionCount:    3,
				Authors:         "C. Balázs, E. L. Berger",
				Institutions:    "pa",
				UpdateFrequency: ptr(60.5),
			},
		},
		{
			name: "datestamp",
			rec:  raw.Record{Format: raw.FormatArXiv, ID: "x", Title: "T", UpdateDate: "garbage", Datestamp: "2019-06-06"},
			want: Row{
				ID:              "x",
				Format:          "arXiv",
				Title:           "T",
				SubmittedDate:   "2019-06-06",
				LastUpdatedDate: "2019-06-06",
				VersionCount:    1,
			},
		},
		{
			name: "today",
			rec:  raw.Record{Format: raw.FormatArXivRaw, ID: "y"},
			want: Row{
				ID:              "y",
				Format:          "arXivRaw",
				SubmittedDate:   "2025-03-01",
				LastUpdatedDate: "2025-03-01",
				VersionCount:    1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Clean(tt.rec, fixedNow())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Clean() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClean_QualityRecord(t *testing.T) {
	_, q := Clean(raw.Record{Format: raw.FormatArXivRaw, ID: "x", Authors: "Someone"}, fixedNow())
	if q.Fields != quality.FieldAuthors || q.Authors != 1 || q.Versions != -1 {
		t.Errorf("quality record = %+v", q)
	}
	_, q = Clean(raw.Record{Format: raw.FormatArXiv, ID: "x", AuthorsParsed: [][]string{{"A", "B"}, {"C", "D"}}}, fixedNow())
	if q.Fields != quality.AllFields || q.Authors != 2 {
		t.Errorf("quality record = %+v", q)
	}
}

func arxiv(id, day string) raw.Record {
	return raw.Record{
		Format:        raw.FormatArXiv,
		ID:            id,
		Title:         "Title " + id,
		Abstract:      "Abstract",
		Categories:    "cs.AI",
		UpdateDate:    day,
		AuthorsParsed: [][]string{{"Doe", "Jane", ""}},
	}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	store := rawstore.NewLocal(t.TempDir())
	sink := columnar.NewWriter[Row](store, "processed", columnar.WithLogger(quietLogger()))
	m := metrics.New(metrics.WithLogger(quietLogger()))
	p := New(sink, WithChunkSize(2), WithLogger(quietLogger()), WithClock(fixedNow), WithMetrics(m))

	in := Input{
		Files:    2,
		BadLines: 1,
		Records: []raw.Record{
			arxiv("a1", "2024-01-02"),
			arxiv("a2", "2024-01-02"),
			arxiv("a3", "2024-01-02"),
			{Format: raw.FormatArXiv, ID: "empty", UpdateDate: "2024-01-02"},
			arxiv("b1", "2024-01-03"),
			{Format: raw.FormatArXivRaw, ID: "a1", Authors: "Jane Doe", Versions: []raw.Version{
				{Version: "v1", Created: "Tue, 2 Jan 2024 10:00:00 GMT"},
			}},
		},
	}

	res, err := p.Process(ctx, in)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("Status = %q", res.Status)
	}
	if res.Total != 6 || res.Successful != 5 || res.Failed != 2 || res.ProcessedFiles != 2 {
		t.Errorf("Process() = %+v", res)
	}
	if !res.Quality.Passed || res.Quality.Total != 5 {
		t.Errorf("Quality = %+v, want 5 records passing", res.Quality)
	}

	keys, err := store.List(ctx, "processed/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{
		"processed/year=2024/month=01/day=02/part-00001.parquet",
		"processed/year=2024/month=01/day=02/part-00002.parquet",
		"processed/year=2024/month=01/day=03/part-00001.parquet",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if len(res.OutputFiles) != 3 {
		t.Errorf("OutputFiles = %v", res.OutputFiles)
	}

	var ids []string
	for _, key := range keys {
		data, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		rows, err := columnar.Decode[Row](data)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", key, err)
		}
		for _, r := range rows {
			ids = append(ids, r.Format+"/"+r.ID)
		}
	}
	wantIDs := []string{"arXiv/a1", "arXiv/a2", "arXiv/a3", "arXivRaw/a1", "arXiv/b1"}
	if diff := cmp.Diff(wantIDs, ids); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	got := m.Metrics()
	if got["successful_records"] != 5 || got["output_files"] != 3 {
		t.Errorf("metrics = %v", got)
	}
	if _, ok := got["write_duration"]; !ok {
		t.Error("write_duration not recorded")
	}
}

type failingStore struct {
	rawstore.Store
}

var errDiskFull = errors.New("disk full")

func (failingStore) Put(context.Context, string, []byte, string) error { return errDiskFull }

func (failingStore) Location(key string) string { return key }

func TestProcess_WriteFailure(t *testing.T) {
	sink := columnar.NewWriter[Row](failingStore{}, "out", columnar.WithLogger(quietLogger()))
	p := New(sink, WithLogger(quietLogger()), WithClock(fixedNow))

	res, err := p.Process(context.Background(), Input{Records: []raw.Record{arxiv("a", "2024-01-02")}})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("Process() error = %v, want %v", err, errDiskFull)
	}
	if res.Status != StatusError || res.Error == "" {
		t.Errorf("Result = %+v, want error status", res)
	}
}

func TestFromFile(t *testing.T) {
	ctx := context.Background()
	store := rawstore.NewLocal(t.TempDir())
	body := []byte("{\"id\":\"a\",\"title\":\"A\"}\nnot json\n{\"id\":\"b\",\"title\":\"B\"}\n")
	if err := store.Put(ctx, "snapshot.json", body, raw.ContentType); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	in, err := FromFile(ctx, store, "snapshot.json", raw.FormatArXiv)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if len(in.Records) != 2 || in.BadLines != 1 || in.Files != 1 {
		t.Errorf("FromFile() = %d records, %d bad lines, %d files", len(in.Records), in.BadLines, in.Files)
	}
	if in.Records[0].Format != raw.FormatArXiv {
		t.Errorf("Format = %q", in.Records[0].Format)
	}

	if _, err := FromFile(ctx, store, "missing.json", raw.FormatArXiv); !errors.Is(err, rawstore.ErrNotFound) {
		t.Errorf("FromFile(missing) error = %v, want ErrNotFound", err)
	}
}
