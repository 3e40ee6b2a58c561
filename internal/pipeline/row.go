package pipeline

import (
	"strings"

	"github.com/paperflow/arxetl/internal/paper"
)

// Row is the flat parquet form of a unified paper. Dates are YYYY-MM-DD and
// empty when unknown.
type Row struct {
	PaperID                 string   `parquet:"paper_id"`
	Title                   string   `parquet:"title"`
	Abstract                string   `parquet:"abstract"`
	DOI                     string   `parquet:"doi"`
	JournalRef              string   `parquet:"journal_ref"`
	Categories              string   `parquet:"categories"`
	PrimaryCategory         string   `parquet:"primary_category"`
	Authors                 string   `parquet:"authors"`
	Institution             string   `parquet:"institution"`
	VersionCount            int64    `parquet:"version_count"`
	SubmittedDate           string   `parquet:"submitted_date"`
	PublishedDate           string   `parquet:"published_date"`
	UpdateDate              string   `parquet:"update_date"`
	IsPublished             bool     `parquet:"is_published"`
	UpdateFrequency         *float64 `parquet:"update_frequency,optional"`
	SubmissionToPublication *float64 `parquet:"submission_to_publication,optional"`
	LastProcessed           string   `parquet:"last_processed"`
}

func dateString(d *paper.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// RowOf flattens p. Authors become "Last, First; ...".
func RowOf(p paper.Paper) Row {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		names = append(names, a.LastName+", "+a.FirstName)
	}
	return Row{
		PaperID:                 p.PaperID,
		Title:                   p.Title,
		Abstract:                p.Abstract,
		DOI:                     p.DOI,
		JournalRef:              p.JournalRef,
		Categories:              strings.Join(p.Categories, " "),
		PrimaryCategory:         p.PrimaryCategory,
		Authors:                 strings.Join(names, "; "),
		Institution:             p.Institution,
		VersionCount:            int64(p.VersionCount),
		SubmittedDate:           dateString(p.SubmittedDate),
		PublishedDate:           dateString(p.PublishedDate),
		UpdateDate:              dateString(p.UpdateDate),
		IsPublished:             p.IsPublished,
		UpdateFrequency:         p.UpdateFrequency,
		SubmissionToPublication: p.SubmissionToPublication,
		LastProcessed:           p.LastProcessed,
	}
}
