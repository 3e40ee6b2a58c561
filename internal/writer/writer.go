// Package writer upserts paper records into a table, merging each one with
// any record already stored under the same paper_id.
package writer

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/dispatch"
	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/paper"
	"github.com/paperflow/arxetl/internal/table"
)

// Outcome tells whether an upsert created or updated a record.
type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeUpdated
)

func (o Outcome) String() string {
	if o == OutcomeUpdated {
		return "updated"
	}
	return "new"
}

// Writer performs read-merge-write cycles against a table.
// Two writers racing on the same paper_id can lose an update.
type Writer struct {
	table      table.Table
	log        log.FieldLogger
	now        func() time.Time
	batchPause time.Duration
	sleep      func(time.Duration)
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(w *Writer) { w.log = l }
}

// WithClock sets the clock used for last_processed.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithBatchPause sets a pause after each batch.
func WithBatchPause(d time.Duration) Option {
	return func(w *Writer) { w.batchPause = d }
}

// New creates a Writer for t.
func New(t table.Table, opts ...Option) *Writer {
	w := &Writer{
		table: t,
		log:   log.StandardLogger(),
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Upsert stores p, merging it with the stored record if there is one.
// Conversion warnings are logged and returned; they do not fail the write.
func (w *Writer) Upsert(ctx context.Context, p paper.Paper) (Outcome, []item.Warning, error) {
	if p.PaperID == "" {
		return OutcomeNew, nil, table.ErrMissingKey
	}

	stored, err := w.table.Get(ctx, p.PaperID)
	if err != nil {
		return OutcomeNew, nil, fmt.Errorf("looking up %s: %w", p.PaperID, err)
	}

	outcome := OutcomeNew
	record := p
	if len(stored) > 0 {
		existing, err := paper.FromItem(stored)
		if err != nil {
			return OutcomeNew, nil, fmt.Errorf("decoding stored %s: %w", p.PaperID, err)
		}
		record = Merge(existing, p)
		outcome = OutcomeUpdated
	}
	if record.LastProcessed == "" {
		record.LastProcessed = w.now().UTC().Format(time.RFC3339)
	}

	it, warnings := record.Item()
	for _, warn := range warnings {
		w.log.WithFields(log.Fields{
			"paper_id": p.PaperID,
			"field":    warn.Field,
		}).WithError(warn.Err).Warn("field dropped during conversion")
	}

	if err := w.table.Put(ctx, it); err != nil {
		return outcome, warnings, fmt.Errorf("writing %s: %w", p.PaperID, err)
	}
	return outcome, warnings, nil
}

// WriteBatch upserts records in order. A record that fails is logged and
// counted; the rest of the batch continues.
func (w *Writer) WriteBatch(ctx context.Context, batch []paper.Paper) (dispatch.Counts, error) {
	var counts dispatch.Counts
	for _, p := range batch {
		outcome, warnings, err := w.Upsert(ctx, p)
		counts.Warnings += len(warnings)
		if err != nil {
			counts.Failed++
			w.log.WithField("paper_id", p.PaperID).WithError(err).Error("upsert failed")
			continue
		}
		if outcome == OutcomeUpdated {
			counts.Updated++
		} else {
			counts.New++
		}
	}
	if w.batchPause > 0 {
		w.sleep(w.batchPause)
	}
	return counts, nil
}

// Write drives all records through d.
func (w *Writer) Write(ctx context.Context, d *dispatch.Dispatcher[paper.Paper], records []paper.Paper) dispatch.Result {
	return d.Run(ctx, records, w.WriteBatch)
}
