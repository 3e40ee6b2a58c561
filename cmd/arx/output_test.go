package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/paperflow/arxetl/internal/paper"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a rather long title", 10, "a rathe..."},
		{"Balázs und Köhler", 8, "Baláz..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatAuthorsShort(t *testing.T) {
	authors := []paper.Author{
		{LastName: "Balázs", FirstName: "C."},
		{LastName: "Berger", FirstName: "E. L."},
		{LastName: "Nadolsky"},
		{LastName: "Yuan", FirstName: "C.-P."},
	}
	tests := []struct {
		name string
		max  int
		want string
	}{
		{"all", 4, "Balázs C, Berger E, Nadolsky, Yuan C"},
		{"et al", 2, "Balázs C, Berger E, et al."},
		{"none", 0, "et al."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAuthorsShort(authors, tt.max); got != tt.want {
				t.Errorf("formatAuthorsShort() = %q, want %q", got, tt.want)
			}
		})
	}
	if got := formatAuthorsShort(nil, 3); got != "" {
		t.Errorf("formatAuthorsShort(nil) = %q, want empty", got)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("formatDuration(1.5s) = %q", got)
	}
	if got := formatDuration(125 * time.Second); got != "2m 5s" {
		t.Errorf("formatDuration(125s) = %q", got)
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]int{"math.AG": 1, "cs.LG": 2, "hep-ph": 3})
	if diff := cmp.Diff([]string{"cs.LG", "hep-ph", "math.AG"}, got); diff != "" {
		t.Errorf("sortedKeys() mismatch (-want +got):\n%s", diff)
	}
}
