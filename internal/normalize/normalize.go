// Package normalize cleans text fields and parses the date encodings found
// in arXiv metadata.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jinzhu/now"
)

// DayLayout is the YYYY-MM-DD form used for day keys.
const DayLayout = "2006-01-02"

// minYear is the earliest year ParseDate accepts.
const minYear = 1900

// ErrUnparseableDate is returned when no known encoding matches.
var ErrUnparseableDate = errors.New("unparseable date")

// Layouts tried before falling back to heuristics, in order.
var layouts = []string{
	time.RFC3339,
	DayLayout,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

var (
	embeddedISO  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	embeddedDMY  = regexp.MustCompile(`(\d{1,2} [A-Z][a-z]{2} \d{4})`)
	journalYear  = regexp.MustCompile(`\((\d{4})\)`)
	angleAddress = regexp.MustCompile(`<([^>]*)>`)
)

// CleanText collapses every whitespace run to one space and trims the ends.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitCategories splits a whitespace-delimited category string.
func SplitCategories(s string) []string {
	return strings.Fields(s)
}

// Institution extracts a short institution name from a submitter string such
// as "Jane Doe <jdoe@cs.example.edu>", returning "cs". It returns "" when the
// string carries no usable address.
func Institution(submitter string) string {
	if !strings.Contains(submitter, "@") {
		return ""
	}
	address := submitter
	if m := angleAddress.FindStringSubmatch(submitter); m != nil {
		address = m[1]
	}
	_, domain, ok := strings.Cut(address, "@")
	if !ok {
		return ""
	}
	label, _, _ := strings.Cut(strings.TrimSpace(domain), ".")
	return label
}

// ParseDate parses ISO dates, RFC 2822 style timestamps, and finally looks
// for a date embedded in a longer string. The result is in UTC. Dates before
// minYear are rejected so callers can fall through to another candidate.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrUnparseableDate)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil && plausible(t) {
			return t.UTC(), nil
		}
	}
	if m := embeddedISO.FindString(s); m != "" {
		if t, err := time.Parse(DayLayout, m); err == nil && plausible(t) {
			return t, nil
		}
	}
	if m := embeddedDMY.FindString(s); m != "" {
		if t, err := time.Parse("2 Jan 2006", m); err == nil && plausible(t) {
			return t, nil
		}
	}
	// dateparse guesses at partial input and can return year zero.
	if t, err := dateparse.ParseIn(s, time.UTC); err == nil && plausible(t) {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, s)
}

func plausible(t time.Time) bool {
	return t.Year() >= minYear
}

// FirstDate returns the first candidate that parses.
func FirstDate(candidates ...string) (time.Time, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := ParseDate(c); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// JournalYear finds a parenthesized four digit year, as in "Phys. Rev. (2021)".
func JournalYear(journalRef string) (int, bool) {
	m := journalYear.FindStringSubmatch(journalRef)
	if m == nil {
		return 0, false
	}
	var year int
	if _, err := fmt.Sscanf(m[1], "%d", &year); err != nil {
		return 0, false
	}
	return year, true
}

// Day truncates t to the start of its UTC day.
func Day(t time.Time) time.Time {
	return now.With(t.UTC()).BeginningOfDay()
}

// Days lists every day in [from, to).
func Days(from, to time.Time) []time.Time {
	var days []time.Time
	end := Day(to)
	for d := Day(from); d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayString formats t as YYYY-MM-DD.
func DayString(t time.Time) string {
	return t.Format(DayLayout)
}
