// Package query answers read-only questions about stored papers.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/paper"
	"github.com/paperflow/arxetl/internal/table"
)

// Default result limits.
const (
	DefaultLimit            = 100
	DefaultInstitutionLimit = 50
)

// ErrNotFound is returned when a paper does not exist.
var ErrNotFound = errors.New("paper not found")

// Service runs queries against a table.
type Service struct {
	table table.Table
	log   log.FieldLogger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a Service over t.
func New(t table.Table, opts ...Option) *Service {
	s := &Service{table: t, log: log.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func (s *Service) papers(items []item.Item) []paper.Paper {
	out := make([]paper.Paper, 0, len(items))
	for _, it := range items {
		p, err := paper.FromItem(it)
		if err != nil {
			s.log.WithError(err).Warn("skipping unreadable item")
			continue
		}
		out = append(out, p)
	}
	return out
}

// scan visits every readable paper until keep has accepted limit of them.
// A limit of zero means no limit.
func (s *Service) scan(ctx context.Context, limit int, keep func(paper.Paper) bool) ([]paper.Paper, error) {
	var out []paper.Paper
	err := s.table.Scan(ctx, func(it item.Item) bool {
		p, err := paper.FromItem(it)
		if err != nil {
			s.log.WithError(err).Warn("skipping unreadable item")
			return true
		}
		if keep(p) {
			out = append(out, p)
		}
		return limit == 0 || len(out) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("scanning table: %w", err)
	}
	return out, nil
}

// Paper returns one paper.
func (s *Service) Paper(ctx context.Context, id string) (paper.Paper, error) {
	it, err := s.table.Get(ctx, id)
	if err != nil {
		return paper.Paper{}, fmt.Errorf("getting paper %s: %w", id, err)
	}
	if len(it) == 0 {
		return paper.Paper{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return paper.FromItem(it)
}

// ByCategory returns papers whose primary category is category, most
// recently updated first.
func (s *Service) ByCategory(ctx context.Context, category string, limit int) ([]paper.Paper, error) {
	items, err := s.table.QueryCategory(ctx, table.CategoryQuery{
		Category:   category,
		Limit:      limitOr(limit, DefaultLimit),
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("querying category %s: %w", category, err)
	}
	return s.papers(items), nil
}

// ByDateRange returns papers updated within [from, to], both inclusive
// YYYY-MM-DD. With a category the index is used, otherwise the table is
// scanned.
func (s *Service) ByDateRange(ctx context.Context, from, to, category string, limit int) ([]paper.Paper, error) {
	q := table.CategoryQuery{Category: category, From: from, To: to, Limit: limitOr(limit, DefaultLimit)}
	if category != "" {
		items, err := s.table.QueryCategory(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("querying category %s: %w", category, err)
		}
		return s.papers(items), nil
	}

	out, err := s.scan(ctx, q.Limit, func(p paper.Paper) bool {
		return p.UpdateDate != nil && q.InRange(p.UpdateDate.String())
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdateDate.Before(out[j].UpdateDate.Time)
	})
	return out, nil
}

// CategoryUpdates is the mean version count of a category.
type CategoryUpdates struct {
	AverageUpdates float64 `json:"average_updates"`
	TotalPapers    int     `json:"total_papers"`
}

// AverageUpdates returns the mean version count per primary category. An
// empty category means all of them.
func (s *Service) AverageUpdates(ctx context.Context, category string) (map[string]CategoryUpdates, error) {
	totals := make(map[string]int)
	papers, err := s.scan(ctx, 0, func(p paper.Paper) bool {
		return p.PrimaryCategory != "" && p.VersionCount > 0 &&
			(category == "" || p.PrimaryCategory == category)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]CategoryUpdates)
	for _, p := range papers {
		u := out[p.PrimaryCategory]
		u.TotalPapers++
		totals[p.PrimaryCategory] += p.VersionCount
		out[p.PrimaryCategory] = u
	}
	for cat, u := range out {
		u.AverageUpdates = float64(totals[cat]) / float64(u.TotalPapers)
		out[cat] = u
	}
	return out, nil
}

// PublicationStats summarizes days from submission to publication.
type PublicationStats struct {
	AverageDays float64 `json:"average_days"`
	MinDays     float64 `json:"min_days"`
	MaxDays     float64 `json:"max_days"`
	SampleSize  int     `json:"sample_size"`
}

// SubmissionToPublication returns publication delay statistics per primary
// category for published papers. An empty category means all of them.
func (s *Service) SubmissionToPublication(ctx context.Context, category string) (map[string]PublicationStats, error) {
	papers, err := s.scan(ctx, 0, func(p paper.Paper) bool {
		return p.IsPublished && p.SubmissionToPublication != nil && p.PrimaryCategory != "" &&
			(category == "" || p.PrimaryCategory == category)
	})
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	out := make(map[string]PublicationStats)
	for _, p := range papers {
		days := *p.SubmissionToPublication
		st, ok := out[p.PrimaryCategory]
		if !ok || days < st.MinDays {
			st.MinDays = days
		}
		if !ok || days > st.MaxDays {
			st.MaxDays = days
		}
		st.SampleSize++
		sums[p.PrimaryCategory] += days
		out[p.PrimaryCategory] = st
	}
	for cat, st := range out {
		st.AverageDays = sums[cat] / float64(st.SampleSize)
		out[cat] = st
	}
	return out, nil
}

// ByAuthor returns papers with an author whose first or last name contains
// name, ignoring case.
func (s *Service) ByAuthor(ctx context.Context, name string, limit int) ([]paper.Paper, error) {
	return s.scan(ctx, limitOr(limit, DefaultLimit), func(p paper.Paper) bool {
		for _, a := range p.Authors {
			if a.Matches(name) {
				return true
			}
		}
		return false
	})
}

// ByUpdateFrequency returns papers whose update frequency lies within the
// optional inclusive bounds.
func (s *Service) ByUpdateFrequency(ctx context.Context, minDays, maxDays *float64, limit int) ([]paper.Paper, error) {
	return s.scan(ctx, limitOr(limit, DefaultLimit), func(p paper.Paper) bool {
		f := p.UpdateFrequency
		if f == nil {
			return false
		}
		if minDays != nil && *f < *minDays {
			return false
		}
		if maxDays != nil && *f > *maxDays {
			return false
		}
		return true
	})
}

// Versions returns the revision history of a paper.
func (s *Service) Versions(ctx context.Context, id string) ([]paper.Version, error) {
	p, err := s.Paper(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Versions, nil
}

// InstitutionCount is the number of papers submitted from an institution.
type InstitutionCount struct {
	Institution string `json:"institution"`
	Count       int    `json:"count"`
}

// InstitutionCounts returns submission counts per institution, largest
// first, ties broken by name.
func (s *Service) InstitutionCounts(ctx context.Context, limit int) ([]InstitutionCount, error) {
	counts := make(map[string]int)
	_, err := s.scan(ctx, 0, func(p paper.Paper) bool {
		if p.Institution != "" {
			counts[p.Institution]++
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	out := make([]InstitutionCount, 0, len(counts))
	for inst, n := range counts {
		out = append(out, InstitutionCount{Institution: inst, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Institution < out[j].Institution
	})
	if limit = limitOr(limit, DefaultInstitutionLimit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
