package writer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/paperflow/arxetl/internal/paper"
)

func mustDate(t *testing.T, s string) *paper.Date {
	t.Helper()
	d, err := paper.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func samplePaper(t *testing.T) paper.Paper {
	t.Helper()
	p := paper.Paper{
		PaperID:         "0704.0001",
		Title:           "Calculation of prompt diphoton production",
		Abstract:        "A fully differential calculation.",
		DOI:             "10.1103/PhysRevD.76.013009",
		JournalRef:      "Phys.Rev.D76:013009,2007",
		Categories:      []string{"hep-ph", "hep-ex"},
		PrimaryCategory: "hep-ph",
		Authors: []paper.Author{
			{LastName: "Balázs", FirstName: "C."},
			{LastName: "Berger", FirstName: "E. L."},
		},
		Institution: "anl",
		Versions: []paper.Version{
			{Version: "v1", Created: "Mon, 2 Apr 2007 19:18:42 GMT"},
			{Version: "v2", Created: "Tue, 24 Jul 2007 20:10:27 GMT"},
		},
		UpdateDate:    mustDate(t, "2008-11-13"),
		LastProcessed: "2025-01-01T00:00:00Z",
	}
	p.Derive()
	return p
}

func TestMerge_Idempotent(t *testing.T) {
	p := samplePaper(t)
	got := Merge(p, p)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("Merge(p, p) mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_EmptyIncomingDoesNotOverwrite(t *testing.T) {
	existing := samplePaper(t)
	incoming := paper.Paper{PaperID: existing.PaperID, LastProcessed: "2025-02-01T00:00:00Z"}

	got := Merge(existing, incoming)

	if got.Title != existing.Title {
		t.Errorf("Title = %q, want %q", got.Title, existing.Title)
	}
	if got.DOI != existing.DOI {
		t.Errorf("DOI = %q, want %q", got.DOI, existing.DOI)
	}
	if len(got.Authors) != 2 {
		t.Errorf("Authors = %v, want existing authors kept", got.Authors)
	}
	if !paper.EqualDates(got.UpdateDate, existing.UpdateDate) {
		t.Errorf("UpdateDate = %v, want %v", got.UpdateDate, existing.UpdateDate)
	}
	if got.LastProcessed != "2025-02-01T00:00:00Z" {
		t.Errorf("LastProcessed = %q, want incoming value", got.LastProcessed)
	}
}

func TestMerge_AuthorsReplacedByNonEmptyList(t *testing.T) {
	existing := samplePaper(t)
	incoming := paper.Paper{
		PaperID: existing.PaperID,
		Authors: []paper.Author{{LastName: "Yuan", FirstName: "C. -P."}},
	}

	got := Merge(existing, incoming)

	want := []paper.Author{{LastName: "Yuan", FirstName: "C. -P."}}
	if diff := cmp.Diff(want, got.Authors); diff != "" {
		t.Errorf("Authors mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_CategoriesUnion(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		incoming []string
		want     []string
	}{
		{"disjoint", []string{"cs.AI"}, []string{"cs.LG"}, []string{"cs.AI", "cs.LG"}},
		{"overlap", []string{"cs.AI", "cs.CL"}, []string{"cs.CL", "stat.ML"}, []string{"cs.AI", "cs.CL", "stat.ML"}},
		{"empty incoming", []string{"math.CO"}, nil, []string{"math.CO"}},
		{"duplicates collapse", []string{"a", "a"}, []string{"a"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(
				paper.Paper{PaperID: "x", Categories: tt.existing},
				paper.Paper{PaperID: "x", Categories: tt.incoming},
			)
			sorted := cmpopts.SortSlices(func(a, b string) bool { return a < b })
			if diff := cmp.Diff(tt.want, got.Categories, sorted); diff != "" {
				t.Errorf("Categories mismatch (-want +got):\n%s", diff)
			}

			// Superset of both inputs, no duplicates.
			set := make(map[string]bool)
			for _, c := range got.Categories {
				if set[c] {
					t.Errorf("duplicate category %q", c)
				}
				set[c] = true
			}
			for _, c := range append(append([]string{}, tt.existing...), tt.incoming...) {
				if !set[c] {
					t.Errorf("category %q missing from merge", c)
				}
			}
		})
	}
}

func TestMerge_VersionsIncomingWins(t *testing.T) {
	existing := paper.Paper{
		PaperID:  "x",
		Versions: []paper.Version{{Version: "v1", Created: "A"}},
	}
	incoming := paper.Paper{
		PaperID: "x",
		Versions: []paper.Version{
			{Version: "v1", Created: "B"},
			{Version: "v2", Created: "C"},
		},
	}

	got := Merge(existing, incoming)

	want := []paper.Version{{Version: "v1", Created: "B"}, {Version: "v2", Created: "C"}}
	if diff := cmp.Diff(want, got.Versions); diff != "" {
		t.Errorf("Versions mismatch (-want +got):\n%s", diff)
	}
	if got.VersionCount != 2 {
		t.Errorf("VersionCount = %d, want 2", got.VersionCount)
	}
}

func TestMerge_VersionCountNeverSummed(t *testing.T) {
	p := samplePaper(t)
	got := Merge(p, p)
	got = Merge(got, p)
	if got.VersionCount != len(got.Versions) || got.VersionCount != 2 {
		t.Errorf("VersionCount = %d with %d versions, want 2", got.VersionCount, len(got.Versions))
	}
}

func TestMerge_AddedVersionRecomputesMetrics(t *testing.T) {
	existing := paper.Paper{
		PaperID:  "1234.5678",
		Title:    "Foo Bar",
		Versions: []paper.Version{{Version: "v1", Created: "Mon, 1 Jan 2020 00:00:00 GMT"}},
	}
	existing.Derive()
	incoming := paper.Paper{
		PaperID:    "1234.5678",
		JournalRef: "Some Journal (2021)",
		Versions:   []paper.Version{{Version: "v2", Created: "Thu, 2 Jan 2020 00:00:00 GMT"}},
	}
	incoming.Derive()

	got := Merge(existing, incoming)

	if got.VersionCount != 2 {
		t.Errorf("VersionCount = %d, want 2", got.VersionCount)
	}
	if got.UpdateFrequency == nil || *got.UpdateFrequency != 1.0 {
		t.Errorf("UpdateFrequency = %v, want 1.0", got.UpdateFrequency)
	}
	if !got.IsPublished {
		t.Error("IsPublished = false, want true")
	}
	if got.SubmittedDate == nil || got.SubmittedDate.String() != "2020-01-01" {
		t.Errorf("SubmittedDate = %v, want 2020-01-01", got.SubmittedDate)
	}
	if got.SubmissionToPublication == nil || *got.SubmissionToPublication != 1.0 {
		t.Errorf("SubmissionToPublication = %v, want 1.0", got.SubmissionToPublication)
	}
}

func TestUnionCategories_Order(t *testing.T) {
	got := unionCategories([]string{"b", "a"}, []string{"c", "a"})
	want := []string{"b", "a", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unionCategories mismatch (-want +got):\n%s", diff)
	}
}
