package history

import (
	"strings"
	"time"

	"github.com/paperflow/arxetl/internal/normalize"
	"github.com/paperflow/arxetl/internal/quality"
	"github.com/paperflow/arxetl/internal/raw"
)

// Row is one cleaned record as written to parquet. Dates are YYYY-MM-DD.
type Row struct {
	ID                      string   `parquet:"id" json:"id"`
	Format                  string   `parquet:"format" json:"format"`
	Title                   string   `parquet:"title" json:"title"`
	Abstract                string   `parquet:"abstract" json:"abstract"`
	Categories              string   `parquet:"categories" json:"categories"`
	DOI                     string   `parquet:"doi" json:"doi"`
	SubmittedDate           string   `parquet:"submitted_date" json:"submitted_date"`
	LastUpdatedDate         string   `parquet:"last_updated_date" json:"last_updated_date"`
	VersionCount            int64    `parquet:"version_count" json:"version_count"`
	Authors                 string   `parquet:"authors" json:"authors"`
	Institutions            string   `parquet:"institutions" json:"institutions"`
	JournalRef              string   `parquet:"journal_ref" json:"journal_ref"`
	IsPublished             bool     `parquet:"is_published" json:"is_published"`
	UpdateFrequency         *float64 `parquet:"update_frequency,optional" json:"update_frequency,omitempty"`
	SubmissionToPublication *float64 `parquet:"submission_to_publication,optional" json:"submission_to_publication,omitempty"`
}

// Insufficient reports whether an arXiv row lacks every descriptive field.
func (r Row) Insufficient() bool {
	return r.Format == string(raw.FormatArXiv) && r.Title == "" && r.Abstract == "" && r.Categories == ""
}

// publicationMonth and publicationDay date a journal year to mid-year.
const (
	publicationMonth = time.July
	publicationDay   = 1
)

func days(from, to time.Time) int {
	return int(normalize.Day(to).Sub(normalize.Day(from)).Hours() / 24)
}

// Clean converts one raw record into a Row and the values the quality
// checker needs. now supplies the date of last resort.
func Clean(rec raw.Record, now time.Time) (Row, quality.Record) {
	row := Row{
		ID:         strings.TrimSpace(rec.ID),
		Format:     string(rec.Format),
		Title:      strings.TrimSpace(rec.Title),
		Abstract:   strings.TrimSpace(rec.Abstract),
		Categories: strings.TrimSpace(rec.Categories),
		DOI:        strings.TrimSpace(rec.DOI),
		JournalRef: strings.TrimSpace(rec.JournalRef),
	}
	row.IsPublished = row.JournalRef != ""
	row.Institutions = normalize.Institution(rec.Submitter)

	var names []string
	for _, parts := range rec.AuthorsParsed {
		if len(parts) >= 2 {
			names = append(names, parts[0]+", "+parts[1])
		}
	}
	authorCount := len(names)
	if authorCount > 0 {
		row.Authors = strings.Join(names, "; ")
	} else if a := strings.TrimSpace(rec.Authors); a != "" {
		row.Authors = a
		authorCount = 1
	}

	var submitted, updated time.Time
	if n := len(rec.Versions); n > 0 {
		row.VersionCount = int64(n)
		if d, err := normalize.ParseDate(rec.Versions[0].Created); err == nil {
			submitted = d
		}
		if d, err := normalize.ParseDate(rec.Versions[n-1].Created); err == nil {
			updated = d
		}
	} else if d, err := normalize.ParseDate(rec.UpdateDate); err == nil {
		submitted, updated = d, d
	}
	if submitted.IsZero() {
		if d, err := normalize.ParseDate(rec.Datestamp); err == nil {
			submitted = d
			if updated.IsZero() {
				updated = d
			}
		}
	}

	if !submitted.IsZero() && !updated.IsZero() && row.VersionCount > 1 {
		if diff := days(submitted, updated); diff > 0 {
			f := float64(diff) / float64(row.VersionCount-1)
			row.UpdateFrequency = &f
		}
	}
	if row.IsPublished && !submitted.IsZero() {
		if year, ok := normalize.JournalYear(row.JournalRef); ok {
			pub := time.Date(year, publicationMonth, publicationDay, 0, 0, 0, 0, time.UTC)
			if diff := days(submitted, pub); diff >= 0 {
				f := float64(diff)
				row.SubmissionToPublication = &f
			}
		}
	}

	if submitted.IsZero() {
		submitted = normalize.Day(now)
		if updated.IsZero() {
			updated = submitted
		}
	}
	if updated.IsZero() {
		updated = submitted
	}
	versions := int(row.VersionCount)
	if row.VersionCount == 0 {
		versions = -1
		if normalize.Day(submitted).Equal(normalize.Day(updated)) {
			row.VersionCount = 1
		} else {
			row.VersionCount = 2
		}
	}
	row.SubmittedDate = normalize.DayString(submitted)
	row.LastUpdatedDate = normalize.DayString(updated)

	fields := quality.FieldAuthors
	if rec.Format != raw.FormatArXivRaw {
		fields = quality.AllFields
	}
	q := quality.Record{
		Fields:       fields,
		Title:        row.Title,
		Abstract:     row.Abstract,
		Categories:   row.Categories,
		Authors:      authorCount,
		Submitted:    normalize.Day(submitted),
		Updated:      normalize.Day(updated),
		VersionCount: int(row.VersionCount),
		Versions:     versions,
	}
	return row, q
}
