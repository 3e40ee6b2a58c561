// Package harvest collects OAI-PMH records for a date range and stores them
// as JSON lines files bucketed by datestamp.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/normalize"
	"github.com/paperflow/arxetl/internal/oaipmh"
	"github.com/paperflow/arxetl/internal/raw"
	"github.com/paperflow/arxetl/internal/rawstore"
)

// DefaultBatchSize is how many records of one day go into one file.
const DefaultBatchSize = 10000

// Harvester lists records of one format. *oaipmh.Client satisfies it.
type Harvester interface {
	Harvest(ctx context.Context, req oaipmh.Request, fn func(oaipmh.Record) error) error
}

// Stats summarizes a collection run.
type Stats struct {
	Total      int       `json:"total_records"`
	Successful int       `json:"successful_records"`
	Failed     int       `json:"failed_records"`
	Deleted    int       `json:"deleted_records"`
	Files      int       `json:"files"`
	Start      time.Time `json:"start_time"`
	End        time.Time `json:"end_time"`
}

// Collector harvests [from, to) into a raw store.
type Collector struct {
	client    Harvester
	store     rawstore.Store
	batchSize int
	formats   []raw.Format
	log       log.FieldLogger
	now       func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Collector) { c.log = l }
}

// WithBatchSize sets the number of records per file.
func WithBatchSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithClock sets the clock used for Stats times.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New creates a Collector.
func New(client Harvester, store rawstore.Store, opts ...Option) *Collector {
	c := &Collector{
		client:    client,
		store:     store,
		batchSize: DefaultBatchSize,
		formats:   raw.Formats,
		log:       log.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// bucket accumulates the records of one format and day.
type bucket struct {
	format  raw.Format
	day     string
	seq     int
	pending []raw.Record
}

// Collect deletes any raw data already stored for the range, then harvests
// every format. A failure in one format is logged and the next format still
// runs; the errors are returned together.
func (c *Collector) Collect(ctx context.Context, from, to time.Time) (Stats, error) {
	stats := Stats{Start: c.now()}
	from, to = normalize.Day(from), normalize.Day(to)
	if !from.Before(to) {
		return stats, fmt.Errorf("from %s must be before to %s", normalize.DayString(from), normalize.DayString(to))
	}

	if err := c.deleteExisting(ctx, from, to); err != nil {
		return stats, err
	}

	var errs []error
	for _, format := range c.formats {
		if err := c.collectFormat(ctx, format, from, to, &stats); err != nil {
			c.log.WithField("format", format).Errorf("collection failed: %v", err)
			errs = append(errs, fmt.Errorf("collecting %s: %w", format, err))
		}
	}

	stats.End = c.now()
	c.log.WithFields(log.Fields{
		"total":      stats.Total,
		"successful": stats.Successful,
		"failed":     stats.Failed,
		"files":      stats.Files,
	}).Info("collection complete")
	return stats, errors.Join(errs...)
}

func (c *Collector) deleteExisting(ctx context.Context, from, to time.Time) error {
	for _, day := range normalize.Days(from, to) {
		total := 0
		for _, format := range c.formats {
			n, err := rawstore.DeletePrefix(ctx, c.store, raw.DayPrefix(format, normalize.DayString(day)))
			if err != nil {
				return fmt.Errorf("deleting existing data: %w", err)
			}
			total += n
		}
		if total > 0 {
			c.log.WithFields(log.Fields{"day": normalize.DayString(day), "files": total}).Info("deleted existing raw data")
		}
	}
	return nil
}

func (c *Collector) collectFormat(ctx context.Context, format raw.Format, from, to time.Time, stats *Stats) error {
	c.log.WithField("format", format).Info("collecting metadata")

	buckets := make(map[string]*bucket)
	var order []string

	req := oaipmh.Request{
		MetadataPrefix: format,
		From:           from,
		Until:          to.AddDate(0, 0, -1), // until is inclusive
	}
	err := c.client.Harvest(ctx, req, func(rec oaipmh.Record) error {
		stats.Total++
		if rec.Header.Deleted() {
			stats.Deleted++
			return nil
		}
		r, ok := rec.Raw(format)
		if !ok {
			stats.Failed++
			c.log.WithField("identifier", rec.Header.Identifier).Warn("record has no metadata")
			return nil
		}
		if r.Datestamp == "" {
			stats.Failed++
			c.log.WithField("paper_id", r.ID).Warn("record missing datestamp")
			return nil
		}
		stamp, err := normalize.ParseDate(r.Datestamp)
		if err != nil {
			stats.Failed++
			c.log.WithField("paper_id", r.ID).Warnf("bad datestamp: %v", err)
			return nil
		}
		stamp = normalize.Day(stamp)
		if stamp.Before(from) || !stamp.Before(to) {
			c.log.WithField("datestamp", r.Datestamp).Debug("skipping record outside requested range")
			return nil
		}

		day := normalize.DayString(stamp)
		b, ok := buckets[day]
		if !ok {
			b = &bucket{format: format, day: day, seq: 1}
			buckets[day] = b
			order = append(order, day)
		}
		b.pending = append(b.pending, r)
		stats.Successful++

		if len(b.pending) >= c.batchSize {
			return c.flush(ctx, b, stats)
		}
		return nil
	})

	// Whatever was harvested before a failure is still written.
	for _, day := range order {
		if ferr := c.flush(ctx, buckets[day], stats); ferr != nil && err == nil {
			err = ferr
		}
	}
	return err
}

func (c *Collector) flush(ctx context.Context, b *bucket, stats *Stats) error {
	if len(b.pending) == 0 {
		return nil
	}
	body, err := raw.Marshal(b.pending)
	if err != nil {
		return err
	}
	key := raw.Key(b.format, b.day, b.seq)
	if err := c.store.Put(ctx, key, body, raw.ContentType); err != nil {
		return err
	}
	c.log.WithFields(log.Fields{"records": len(b.pending), "location": c.store.Location(key)}).Info("saved raw batch")

	stats.Files++
	b.seq++
	b.pending = b.pending[:0]
	return nil
}
