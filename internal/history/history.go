// Package history bulk-converts raw metadata into partitioned parquet files.
// Unlike the incremental pipeline it does not pair formats: every raw record
// becomes one row.
package history

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/paperflow/arxetl/internal/columnar"
	"github.com/paperflow/arxetl/internal/extract"
	"github.com/paperflow/arxetl/internal/metrics"
	"github.com/paperflow/arxetl/internal/normalize"
	"github.com/paperflow/arxetl/internal/quality"
	"github.com/paperflow/arxetl/internal/raw"
	"github.com/paperflow/arxetl/internal/rawstore"
)

// Defaults.
const (
	DefaultChunkSize        = 10000
	DefaultFlushConcurrency = 4
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Input is a set of raw records and where they came from.
type Input struct {
	Records  []raw.Record
	Files    int
	BadLines int
}

// FromStore reads every raw file in [from, to) through ext.
func FromStore(ctx context.Context, ext *extract.Extractor, from, to time.Time) (Input, error) {
	records, report, err := ext.Extract(ctx, from, to)
	if err != nil {
		return Input{}, err
	}
	return Input{Records: records, Files: report.Files, BadLines: report.BadLines}, nil
}

// FromFile reads a single JSON lines file of the given format.
func FromFile(ctx context.Context, store rawstore.Store, key string, format raw.Format) (Input, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return Input{}, fmt.Errorf("reading %s: %w", store.Location(key), err)
	}
	records, bad, err := raw.Decode(bytes.NewReader(data), format)
	if err != nil {
		return Input{}, fmt.Errorf("decoding %s: %w", store.Location(key), err)
	}
	return Input{Records: records, Files: 1, BadLines: len(bad)}, nil
}

// Result describes a Process call.
type Result struct {
	Status         string         `json:"status"`
	Total          int            `json:"total_records"`
	Successful     int            `json:"successful_records"`
	Failed         int            `json:"failed_records"`
	ProcessedFiles int            `json:"processed_files"`
	OutputFiles    []string       `json:"output_files"`
	Quality        quality.Report `json:"data_quality"`
	Start          time.Time      `json:"start_time"`
	End            time.Time      `json:"end_time"`
	Error          string         `json:"error,omitempty"`
}

// Processor cleans raw records and writes them as parquet.
type Processor struct {
	sink             *columnar.Writer[Row]
	chunkSize        int
	flushConcurrency int
	thresholds       quality.Thresholds
	metrics          *metrics.Collector
	now              func() time.Time
	log              log.FieldLogger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(p *Processor) { p.log = l }
}

// WithChunkSize sets how many rows a partition buffers before it is written.
func WithChunkSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithFlushConcurrency bounds the parallel writes of the final flush.
func WithFlushConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.flushConcurrency = n
		}
	}
}

// WithThresholds sets the quality thresholds.
func WithThresholds(t quality.Thresholds) Option {
	return func(p *Processor) { p.thresholds = t }
}

// WithMetrics records timings and counts into m.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor writing through sink.
func New(sink *columnar.Writer[Row], opts ...Option) *Processor {
	p := &Processor{
		sink:             sink,
		chunkSize:        DefaultChunkSize,
		flushConcurrency: DefaultFlushConcurrency,
		thresholds:       quality.DefaultThresholds(),
		now:              time.Now,
		log:              log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) start(name string) {
	if p.metrics != nil {
		p.metrics.Start(name)
	}
}

func (p *Processor) stop(name string) {
	if p.metrics != nil {
		p.metrics.Stop(name)
	}
}

func (p *Processor) record(name string, v int) {
	if p.metrics != nil {
		p.metrics.Record(name, float64(v))
	}
}

// Process cleans in.Records, writes them partitioned by submission day and
// returns counts with a quality report. A write failure aborts the run; the
// returned Result still carries what was done.
func (p *Processor) Process(ctx context.Context, in Input) (Result, error) {
	res := Result{
		Status:         StatusSuccess,
		ProcessedFiles: in.Files,
		Failed:         in.BadLines,
		Start:          p.now(),
	}
	fail := func(err error) (Result, error) {
		res.Status = StatusError
		res.Error = err.Error()
		res.OutputFiles = p.sink.Files()
		res.End = p.now()
		p.log.WithError(err).Error("historical processing failed")
		return res, err
	}

	checker := quality.NewChecker(p.thresholds, p.now)
	buffers := make(map[string][]Row)

	p.start("transform")
	now := p.now()
	for _, rec := range in.Records {
		res.Total++
		row, q := Clean(rec, now)
		if row.Insufficient() {
			res.Failed++
			p.log.WithField("paper_id", row.ID).Warn("skipping record with insufficient data")
			continue
		}
		checker.Observe(q)

		submitted, err := time.Parse(normalize.DayLayout, row.SubmittedDate)
		if err != nil {
			return fail(fmt.Errorf("row %s: %w", row.ID, err))
		}
		part := columnar.Partition(submitted)
		buffers[part] = append(buffers[part], row)
		res.Successful++

		if len(buffers[part]) >= p.chunkSize {
			if _, err := p.sink.Write(ctx, part, buffers[part]); err != nil {
				return fail(err)
			}
			buffers[part] = nil
		}
	}
	p.stop("transform")

	p.start("write")
	if err := p.flush(ctx, buffers); err != nil {
		return fail(err)
	}
	p.stop("write")

	res.OutputFiles = p.sink.Files()
	res.Quality = checker.Report()
	res.End = p.now()

	p.record("total_records", res.Total)
	p.record("successful_records", res.Successful)
	p.record("failed_records", res.Failed)
	p.record("output_files", len(res.OutputFiles))

	p.log.WithFields(log.Fields{
		"total":      res.Total,
		"successful": res.Successful,
		"failed":     res.Failed,
		"files":      len(res.OutputFiles),
		"quality":    res.Quality.Status,
	}).Info("historical processing complete")
	return res, nil
}

// flush writes every non-empty buffer, several partitions at a time.
func (p *Processor) flush(ctx context.Context, buffers map[string][]Row) error {
	parts := make([]string, 0, len(buffers))
	for part, rows := range buffers {
		if len(rows) > 0 {
			parts = append(parts, part)
		}
	}
	sort.Strings(parts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.flushConcurrency)
	for _, part := range parts {
		part := part
		rows := buffers[part]
		g.Go(func() error {
			_, err := p.sink.Write(gctx, part, rows)
			return err
		})
	}
	return g.Wait()
}
