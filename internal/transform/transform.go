// Package transform joins arXiv and arXivRaw records that share an id into
// unified paper records.
package transform

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/normalize"
	"github.com/paperflow/arxetl/internal/paper"
	"github.com/paperflow/arxetl/internal/raw"
)

// SkipError explains why a paper produced no record.
type SkipError struct {
	PaperID string
	Reason  string
}

func (e *SkipError) Error() string {
	if e.PaperID == "" {
		return "skipped record: " + e.Reason
	}
	return fmt.Sprintf("skipped %s: %s", e.PaperID, e.Reason)
}

// Report counts what a Transform call did.
type Report struct {
	Input         int       `json:"input_records"` // distinct paper ids
	Output        int       `json:"output_records"`
	Failed        int       `json:"failed_records"`
	Invalid       int       `json:"invalid_records"` // raw records without id or a known format
	DateFallbacks int       `json:"date_fallbacks"`
	Start         time.Time `json:"start_time"`
	End           time.Time `json:"end_time"`
}

// Transformer builds paper records. It keeps no state between calls.
type Transformer struct {
	log log.FieldLogger
	now func() time.Time
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(t *Transformer) { t.log = l }
}

// WithClock sets the clock used for last_processed and the date of last resort.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// New creates a Transformer.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		log: log.StandardLogger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type pair struct {
	arxiv    *raw.Record
	arxivRaw *raw.Record
}

// Transform groups records by id and format and builds one paper for every
// id that has both halves. Output follows the order in which ids first appear.
func (t *Transformer) Transform(records []raw.Record) ([]paper.Paper, Report) {
	report := Report{Start: t.now()}

	pairs := make(map[string]*pair)
	var order []string
	for i := range records {
		rec := &records[i]
		id := strings.TrimSpace(rec.ID)
		if id == "" || rec.Format == "" {
			report.Invalid++
			t.log.WithField("format", rec.Format).Warn("raw record missing id or format, skipping")
			continue
		}
		if rec.Format != raw.FormatArXiv && rec.Format != raw.FormatArXivRaw {
			report.Invalid++
			t.log.WithFields(log.Fields{"paper_id": id, "format": rec.Format}).Warn("unknown format, skipping")
			continue
		}
		pr, ok := pairs[id]
		if !ok {
			pr = &pair{}
			pairs[id] = pr
			order = append(order, id)
		}
		if rec.Format == raw.FormatArXiv {
			pr.arxiv = rec
		} else {
			pr.arxivRaw = rec
		}
	}
	report.Input = len(order)

	papers := make([]paper.Paper, 0, len(order))
	for _, id := range order {
		pr := pairs[id]
		p, fallback, err := t.Pair(pr.arxiv, pr.arxivRaw)
		if err != nil {
			report.Failed++
			t.log.WithField("paper_id", id).Warn(err.Error())
			continue
		}
		if fallback {
			report.DateFallbacks++
		}
		papers = append(papers, p)
	}

	report.Output = len(papers)
	report.End = t.now()
	t.log.WithFields(log.Fields{
		"input":  report.Input,
		"output": report.Output,
		"failed": report.Failed,
	}).Info("transform complete")
	return papers, report
}

// Pair builds the unified record for one paper. It returns a *SkipError when
// either half is missing. The boolean reports whether submitted_date came
// from a fallback source instead of the version history.
func (t *Transformer) Pair(arxiv, arxivRaw *raw.Record) (paper.Paper, bool, error) {
	switch {
	case arxiv == nil && arxivRaw == nil:
		return paper.Paper{}, false, &SkipError{Reason: "no records"}
	case arxiv == nil:
		return paper.Paper{}, false, &SkipError{PaperID: arxivRaw.ID, Reason: "missing arXiv record"}
	case arxivRaw == nil:
		return paper.Paper{}, false, &SkipError{PaperID: arxiv.ID, Reason: "missing arXivRaw record"}
	}

	id := strings.TrimSpace(arxiv.ID)
	if id == "" {
		id = strings.TrimSpace(arxivRaw.ID)
	}
	if id == "" {
		return paper.Paper{}, false, &SkipError{Reason: "missing id"}
	}

	now := t.now()
	p := paper.Paper{
		PaperID:       id,
		Title:         normalize.CleanText(arxiv.Title),
		Abstract:      normalize.CleanText(arxiv.Abstract),
		DOI:           strings.TrimSpace(arxiv.DOI),
		JournalRef:    strings.TrimSpace(arxiv.JournalRef),
		Categories:    normalize.SplitCategories(arxiv.Categories),
		Institution:   normalize.Institution(arxivRaw.Submitter),
		LastProcessed: now.UTC().Format(time.RFC3339),
	}
	if len(p.Categories) > 0 {
		p.PrimaryCategory = p.Categories[0]
	}

	for _, parts := range arxiv.AuthorsParsed {
		if len(parts) < 2 {
			continue
		}
		p.Authors = append(p.Authors, paper.Author{LastName: parts[0], FirstName: parts[1]})
	}
	for _, v := range arxivRaw.Versions {
		p.Versions = append(p.Versions, paper.Version{Version: v.Version, Created: v.Created})
	}

	if d, ok := normalize.FirstDate(arxiv.UpdateDate, arxiv.Datestamp, arxivRaw.Datestamp); ok {
		p.UpdateDate = paper.NewDate(d)
	}

	p.Derive()

	fallback := false
	if p.SubmittedDate == nil {
		fallback = true
		if len(p.Versions) > 0 {
			t.log.WithField("paper_id", id).Warn("no parseable version dates, using fallback submitted_date")
		}
		if p.UpdateDate != nil {
			d := *p.UpdateDate
			p.SubmittedDate = &d
		} else {
			p.SubmittedDate = paper.NewDate(now)
		}
	}
	return p, fallback, nil
}
