// Package quality measures completeness, anomalies and consistency of
// processed paper records.
package quality

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/paperflow/arxetl/internal/paper"
)

// Report statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusWarning = "warning"
)

// Anomaly thresholds.
const (
	MaxTitleLength = 500
	OldestYear     = 1990
)

// Thresholds are the maximum tolerated percentages of missing values.
type Thresholds struct {
	MissingTitlesPct     float64 `yaml:"missing_titles_pct" json:"missing_titles_pct"`
	MissingAbstractsPct  float64 `yaml:"missing_abstracts_pct" json:"missing_abstracts_pct"`
	MissingCategoriesPct float64 `yaml:"missing_categories_pct" json:"missing_categories_pct"`
	MissingAuthorsPct    float64 `yaml:"missing_authors_pct" json:"missing_authors_pct"`
}

// DefaultThresholds returns the standard limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MissingTitlesPct:     5,
		MissingAbstractsPct:  10,
		MissingCategoriesPct: 5,
		MissingAuthorsPct:    15,
	}
}

// Field selects a completeness check.
type Field uint8

// Completeness fields.
const (
	FieldTitle Field = 1 << iota
	FieldAbstract
	FieldCategories
	FieldAuthors

	AllFields = FieldTitle | FieldAbstract | FieldCategories | FieldAuthors
)

// Record is the part of a processed record the checker looks at.
type Record struct {
	// Fields names the completeness checks that apply to the record. Zero
	// means AllFields.
	Fields Field

	Title        string
	Abstract     string
	Categories   string
	Authors      int
	Submitted    time.Time
	Updated      time.Time
	VersionCount int
	Versions     int // -1 when the source carried no version list
}

// FromPaper extracts a Record from a unified paper.
func FromPaper(p paper.Paper) Record {
	r := Record{
		Title:        p.Title,
		Abstract:     p.Abstract,
		Categories:   strings.Join(p.Categories, " "),
		Authors:      len(p.Authors),
		VersionCount: p.VersionCount,
		Versions:     len(p.Versions),
	}
	if p.SubmittedDate != nil {
		r.Submitted = p.SubmittedDate.Time
	}
	if p.UpdateDate != nil {
		r.Updated = p.UpdateDate.Time
	}
	return r
}

// Anomaly counts records with an implausible value.
type Anomaly struct {
	Type        string `json:"type"`
	Field       string `json:"field"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// Metrics holds the completeness and consistency percentages.
type Metrics struct {
	MissingTitlesPct        float64 `json:"missing_titles_pct"`
	MissingAbstractsPct     float64 `json:"missing_abstracts_pct"`
	MissingCategoriesPct    float64 `json:"missing_categories_pct"`
	MissingAuthorsPct       float64 `json:"missing_authors_pct"`
	InconsistentDatesPct    float64 `json:"inconsistent_dates_pct"`
	InconsistentVersionsPct float64 `json:"inconsistent_versions_pct"`
}

// Report is the outcome of a quality check.
type Report struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Total     int       `json:"total_records"`
	Metrics   Metrics   `json:"metrics"`
	Anomalies []Anomaly `json:"anomalies"`
	Passed    bool      `json:"passed"`
}

// Checker accumulates records and produces a Report. It is not safe for
// concurrent use.
type Checker struct {
	thresholds Thresholds
	now        func() time.Time

	total                int
	checked              [4]int
	missingTitles        int
	missingAbstracts     int
	missingCategories    int
	missingAuthors       int
	futureDates          int
	oldDates             int
	longTitles           int
	inconsistentDates    int
	inconsistentVersions int
}

// NewChecker returns a checker using thresholds. A nil clock means time.Now.
func NewChecker(thresholds Thresholds, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{thresholds: thresholds, now: now}
}

// Observe adds one record.
func (c *Checker) Observe(r Record) {
	c.total++
	fields := r.Fields
	if fields == 0 {
		fields = AllFields
	}
	if c.observe(fields, FieldTitle, 0) && r.Title == "" {
		c.missingTitles++
	}
	if c.observe(fields, FieldAbstract, 1) && r.Abstract == "" {
		c.missingAbstracts++
	}
	if c.observe(fields, FieldCategories, 2) && r.Categories == "" {
		c.missingCategories++
	}
	if c.observe(fields, FieldAuthors, 3) && r.Authors == 0 {
		c.missingAuthors++
	}
	if len([]rune(r.Title)) > MaxTitleLength {
		c.longTitles++
	}
	if !r.Submitted.IsZero() {
		if r.Submitted.After(c.now()) {
			c.futureDates++
		}
		if r.Submitted.Year() < OldestYear {
			c.oldDates++
		}
		if !r.Updated.IsZero() && r.Updated.Before(r.Submitted) {
			c.inconsistentDates++
		}
	}
	if r.Versions >= 0 && r.VersionCount != r.Versions {
		c.inconsistentVersions++
	}
}

func (c *Checker) observe(fields, f Field, i int) bool {
	if fields&f == 0 {
		return false
	}
	c.checked[i]++
	return true
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

// Report summarizes everything observed so far.
func (c *Checker) Report() Report {
	if c.total == 0 {
		return Report{
			Status:    StatusWarning,
			Message:   "no records to check",
			Anomalies: []Anomaly{},
			Passed:    true,
		}
	}

	m := Metrics{
		MissingTitlesPct:        percent(c.missingTitles, c.checked[0]),
		MissingAbstractsPct:     percent(c.missingAbstracts, c.checked[1]),
		MissingCategoriesPct:    percent(c.missingCategories, c.checked[2]),
		MissingAuthorsPct:       percent(c.missingAuthors, c.checked[3]),
		InconsistentDatesPct:    percent(c.inconsistentDates, c.total),
		InconsistentVersionsPct: percent(c.inconsistentVersions, c.total),
	}

	var failures []string
	check := func(name string, value, limit float64) {
		if value > limit {
			failures = append(failures, fmt.Sprintf("%s: %.2f%% exceeds threshold of %.2f%%", name, value, limit))
		}
	}
	check("missing_titles", m.MissingTitlesPct, c.thresholds.MissingTitlesPct)
	check("missing_abstracts", m.MissingAbstractsPct, c.thresholds.MissingAbstractsPct)
	check("missing_categories", m.MissingCategoriesPct, c.thresholds.MissingCategoriesPct)
	check("missing_authors", m.MissingAuthorsPct, c.thresholds.MissingAuthorsPct)
	sort.Strings(failures)

	r := Report{
		Total:     c.total,
		Metrics:   m,
		Anomalies: c.anomalies(),
		Passed:    len(failures) == 0,
	}
	if r.Passed {
		r.Status = StatusPassed
		r.Message = "all quality checks passed"
	} else {
		r.Status = StatusFailed
		r.Message = "quality checks failed: " + strings.Join(failures, ", ")
	}
	return r
}

func (c *Checker) anomalies() []Anomaly {
	out := []Anomaly{}
	if c.futureDates > 0 {
		out = append(out, Anomaly{
			Type: "future_date", Field: "submitted_date", Count: c.futureDates,
			Description: fmt.Sprintf("found %d records with submission dates in the future", c.futureDates),
		})
	}
	if c.oldDates > 0 {
		out = append(out, Anomaly{
			Type: "old_date", Field: "submitted_date", Count: c.oldDates,
			Description: fmt.Sprintf("found %d records with submission dates before %d", c.oldDates, OldestYear),
		})
	}
	if c.longTitles > 0 {
		out = append(out, Anomaly{
			Type: "long_title", Field: "title", Count: c.longTitles,
			Description: fmt.Sprintf("found %d records with titles over %d characters", c.longTitles, MaxTitleLength),
		})
	}
	return out
}

// Check runs a checker over records in one call.
func Check(records []Record, thresholds Thresholds, now func() time.Time) Report {
	c := NewChecker(thresholds, now)
	for _, r := range records {
		c.Observe(r)
	}
	return c.Report()
}
