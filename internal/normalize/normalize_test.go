package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Foo  Bar", "Foo Bar"},
		{"  A fully\n  differential\tcalculation ", "A fully differential calculation"},
		{"", ""},
		{"\n\t ", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitCategories(t *testing.T) {
	if diff := cmp.Diff([]string{"hep-ph", "hep-ex"}, SplitCategories(" hep-ph  hep-ex\n")); diff != "" {
		t.Errorf("SplitCategories mismatch (-want +got):\n%s", diff)
	}
	if got := SplitCategories(""); len(got) != 0 {
		t.Errorf("SplitCategories(\"\") = %v, want empty", got)
	}
}

func TestInstitution(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"angle address", "Pavel Nadolsky <nadolsky@pa.msu.edu>", "pa"},
		{"bare address", "jdoe@stanford.edu", "stanford"},
		{"no at sign", "Louis Theran", ""},
		{"empty domain", "someone <x@>", ""},
		{"unterminated angle", "Jane <jane@mit.edu", "mit"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Institution(tt.in); got != tt.want {
				t.Errorf("Institution(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2008-11-13", "2008-11-13"},
		{"2020-01-01T23:30:00Z", "2020-01-01"},
		{"Mon, 2 Apr 2007 19:18:42 GMT", "2007-04-02"},
		{"Tue, 24 Jul 2007 20:10:27 +0000", "2007-07-24"},
		{"updated on 2019-03-04 by the system", "2019-03-04"},
		{"received 5 Mar 2018, accepted later", "2018-03-05"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if err != nil {
				t.Fatalf("ParseDate(%q) error = %v", tt.in, err)
			}
			if DayString(got) != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.in, DayString(got), tt.want)
			}
		})
	}
}

func TestParseDate_Unparseable(t *testing.T) {
	for _, in := range []string{"", "not a date", "v2", "0000-01-01"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrUnparseableDate) {
			t.Errorf("ParseDate(%q) error = %v, want ErrUnparseableDate", in, err)
		}
	}
}

func TestFirstDate(t *testing.T) {
	got, ok := FirstDate("", "garbage", "2021-06-01", "2022-01-01")
	if !ok || DayString(got) != "2021-06-01" {
		t.Errorf("FirstDate() = %v, %v, want 2021-06-01", got, ok)
	}
	got, ok = FirstDate("0000-01-01", "2021-06-01")
	if !ok || DayString(got) != "2021-06-01" {
		t.Errorf("FirstDate() = %v, %v, want the year zero candidate skipped", got, ok)
	}
	if _, ok := FirstDate("", "nope"); ok {
		t.Error("FirstDate() found a date in garbage")
	}
}

func TestJournalYear(t *testing.T) {
	if y, ok := JournalYear("Some Journal (2021)"); !ok || y != 2021 {
		t.Errorf("JournalYear() = %d, %v, want 2021", y, ok)
	}
	if _, ok := JournalYear("Phys.Rev.D76:013009,2007"); ok {
		t.Error("JournalYear() matched a reference without parentheses")
	}
}

func TestDays(t *testing.T) {
	from := time.Date(2024, 2, 27, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	var got []string
	for _, d := range Days(from, to) {
		got = append(got, DayString(d))
	}
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Days() mismatch (-want +got):\n%s", diff)
	}
	if n := len(Days(to, from)); n != 0 {
		t.Errorf("Days() with inverted range = %d days, want 0", n)
	}
}
