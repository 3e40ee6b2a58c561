// Package extract reads harvested raw files back out of a store.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/paperflow/arxetl/internal/normalize"
	"github.com/paperflow/arxetl/internal/raw"
	"github.com/paperflow/arxetl/internal/rawstore"
)

// DefaultConcurrency bounds parallel file reads.
const DefaultConcurrency = 8

// Report counts what an extraction read.
type Report struct {
	Files    int `json:"files"`
	Records  int `json:"records"`
	BadLines int `json:"bad_lines"`
}

// Extractor reads raw records for a date range.
type Extractor struct {
	store       rawstore.Store
	formats     []raw.Format
	concurrency int
	log         log.FieldLogger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(e *Extractor) { e.log = l }
}

// WithConcurrency sets how many files are read at once.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithFormats restricts extraction to the given formats.
func WithFormats(formats ...raw.Format) Option {
	return func(e *Extractor) { e.formats = formats }
}

// New creates an Extractor over store.
func New(store rawstore.Store, opts ...Option) *Extractor {
	e := &Extractor{
		store:       store,
		formats:     raw.Formats,
		concurrency: DefaultConcurrency,
		log:         log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keys lists the raw files for every day in [from, to), format by format.
func (e *Extractor) Keys(ctx context.Context, from, to time.Time) ([]string, error) {
	var keys []string
	for _, format := range e.formats {
		for _, day := range normalize.Days(from, to) {
			found, err := e.store.List(ctx, raw.DayPrefix(format, normalize.DayString(day)))
			if err != nil {
				return nil, fmt.Errorf("listing %s files: %w", format, err)
			}
			keys = append(keys, found...)
		}
	}
	return keys, nil
}

// Extract returns every record stored for days in [from, to). Records come
// back in key order. Unparseable lines are logged and counted, never fatal.
func (e *Extractor) Extract(ctx context.Context, from, to time.Time) ([]raw.Record, Report, error) {
	keys, err := e.Keys(ctx, from, to)
	if err != nil {
		return nil, Report{}, err
	}
	records, report, err := e.Read(ctx, keys)
	if err != nil {
		return nil, report, err
	}
	e.log.WithFields(log.Fields{
		"from":      normalize.DayString(from),
		"to":        normalize.DayString(to),
		"files":     report.Files,
		"records":   report.Records,
		"bad_lines": report.BadLines,
	}).Info("extraction complete")
	return records, report, nil
}

// Read decodes the given raw keys. The format of each file comes from its key.
func (e *Extractor) Read(ctx context.Context, keys []string) ([]raw.Record, Report, error) {
	results := make([][]raw.Record, len(keys))
	var (
		mu     sync.Mutex
		report = Report{Files: len(keys)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			format, _, _, err := raw.ParseKey(key)
			if err != nil {
				return err
			}
			data, err := e.store.Get(gctx, key)
			if err != nil {
				return err
			}
			records, bad, err := raw.Decode(bytes.NewReader(data), format)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", e.store.Location(key), err)
			}
			for _, le := range bad {
				e.log.WithFields(log.Fields{"file": key, "line": le.Line}).Warnf("skipping bad line: %v", le.Err)
			}
			results[i] = records

			mu.Lock()
			report.BadLines += len(bad)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	var out []raw.Record
	for _, rs := range results {
		out = append(out, rs...)
	}
	report.Records = len(out)
	return out, report, nil
}
