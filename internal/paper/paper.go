// Package paper defines the unified paper record produced by the pipeline.
package paper

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the serialized form of a Date.
const DateLayout = "2006-01-02"

// Paper is the unified record built from an arXiv/arXivRaw pair.
type Paper struct {
	// Identity
	PaperID string `json:"paper_id"`

	// Metadata
	Title           string   `json:"title,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`
	DOI             string   `json:"doi,omitempty"`
	JournalRef      string   `json:"journal_ref,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	PrimaryCategory string   `json:"primary_category,omitempty"`
	Authors         []Author `json:"authors,omitempty"`
	Institution     string   `json:"institution,omitempty"`

	// Revision history
	Versions     []Version `json:"versions,omitempty"`
	VersionCount int       `json:"version_count"`

	// Dates (nil when unknown)
	SubmittedDate *Date `json:"submitted_date,omitempty"`
	PublishedDate *Date `json:"published_date,omitempty"`
	UpdateDate    *Date `json:"update_date,omitempty"`

	// Derived metrics
	IsPublished             bool     `json:"is_published"`
	UpdateFrequency         *float64 `json:"update_frequency,omitempty"`
	SubmissionToPublication *float64 `json:"submission_to_publication,omitempty"`

	// Bookkeeping
	LastProcessed string `json:"last_processed,omitempty"`
}

// Author is a structured author name.
type Author struct {
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
}

// Version is one entry of a paper's revision history.
type Version struct {
	Version string `json:"version"` // v1, v2, ...
	Created string `json:"created"` // e.g. "Mon, 2 Apr 2007 19:18:42 GMT"
}

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate truncates t to its UTC calendar day.
func NewDate(t time.Time) *Date {
	y, m, d := t.UTC().Date()
	return &Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (*Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return NewDate(t), nil
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// MarshalJSON writes the date as a quoted YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON reads a quoted YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// DaysUntil returns the number of days from d to other.
func (d Date) DaysUntil(other Date) float64 {
	return other.Sub(d.Time).Hours() / 24
}

// EqualDates reports whether two possibly nil dates are the same day.
func EqualDates(a, b *Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Time.Equal(b.Time)
}

// FullName returns "First Last", or just the last name.
func (a Author) FullName() string {
	if a.FirstName != "" {
		return a.FirstName + " " + a.LastName
	}
	return a.LastName
}

// Matches reports whether name occurs in either part of the author, ignoring case.
func (a Author) Matches(name string) bool {
	needle := strings.ToLower(name)
	return strings.Contains(strings.ToLower(a.FirstName), needle) ||
		strings.Contains(strings.ToLower(a.LastName), needle)
}
