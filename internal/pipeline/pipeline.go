// Package pipeline runs one incremental processing pass: it makes sure the
// table exists, extracts raw records for a date range, pairs them into
// papers and upserts them.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/columnar"
	"github.com/paperflow/arxetl/internal/dispatch"
	"github.com/paperflow/arxetl/internal/extract"
	"github.com/paperflow/arxetl/internal/metrics"
	"github.com/paperflow/arxetl/internal/normalize"
	"github.com/paperflow/arxetl/internal/paper"
	"github.com/paperflow/arxetl/internal/quality"
	"github.com/paperflow/arxetl/internal/table"
	"github.com/paperflow/arxetl/internal/transform"
	"github.com/paperflow/arxetl/internal/writer"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result describes a Run.
type Result struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	From       string    `json:"from_date"`
	To         string    `json:"to_date"`
	Total      int       `json:"total_records"`
	Successful int       `json:"successful_records"`
	Failed     int       `json:"failed_records"`
	New        int       `json:"new_records"`
	Updated    int       `json:"updated_records"`
	Warnings   int       `json:"warnings"`
	Files      int       `json:"processed_files"`
	BadLines   int       `json:"bad_lines"`
	Batches    int       `json:"batches"`
	Start      time.Time `json:"start_time"`
	End        time.Time `json:"end_time"`
	Error      string    `json:"error,omitempty"`

	OutputFiles []string        `json:"output_files,omitempty"`
	Quality     *quality.Report `json:"data_quality,omitempty"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	table       table.Table
	extractor   *extract.Extractor
	transformer *transform.Transformer
	writer      *writer.Writer
	dispatcher  *dispatch.Dispatcher[paper.Paper]
	sink        *columnar.Writer[Row]
	metrics     *metrics.Collector
	thresholds  quality.Thresholds
	runID       string
	now         func() time.Time
	log         log.FieldLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithTransformer replaces the default transformer.
func WithTransformer(t *transform.Transformer) Option {
	return func(p *Pipeline) { p.transformer = t }
}

// WithWriter replaces the default upsert writer.
func WithWriter(w *writer.Writer) Option {
	return func(p *Pipeline) { p.writer = w }
}

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *dispatch.Dispatcher[paper.Paper]) Option {
	return func(p *Pipeline) { p.dispatcher = d }
}

// WithSink also writes papers as parquet, partitioned by submission day. Rows
// carry the merged state read back from the table, so a resubmitted paper
// keeps the versions and categories of earlier runs.
func WithSink(s *columnar.Writer[Row]) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithMetrics records timings and counts into m. The run id is taken from m.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithThresholds sets the quality thresholds.
func WithThresholds(t quality.Thresholds) Option {
	return func(p *Pipeline) { p.thresholds = t }
}

// New creates a Pipeline over t reading through ext.
func New(t table.Table, ext *extract.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		table:      t,
		extractor:  ext,
		thresholds: quality.DefaultThresholds(),
		now:        time.Now,
		log:        log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.transformer == nil {
		p.transformer = transform.New(transform.WithLogger(p.log), transform.WithClock(p.now))
	}
	if p.writer == nil {
		p.writer = writer.New(t, writer.WithLogger(p.log), writer.WithClock(p.now))
	}
	if p.dispatcher == nil {
		p.dispatcher = dispatch.New[paper.Paper](dispatch.DefaultConfig(), dispatch.WithLogger(p.log))
	}
	if p.metrics != nil {
		p.runID = p.metrics.RunID()
	} else {
		p.runID = uuid.NewString()
	}
	return p
}

func (p *Pipeline) start(name string) {
	if p.metrics != nil {
		p.metrics.Start(name)
	}
}

func (p *Pipeline) stop(name string) {
	if p.metrics != nil {
		p.metrics.Stop(name)
	}
}

// Run processes the raw data of every day in [from, to). A failure to
// prepare the table, read raw data or write parquet aborts the run; per
// record failures are only counted.
func (p *Pipeline) Run(ctx context.Context, from, to time.Time) (Result, error) {
	res := Result{
		RunID:  p.runID,
		Status: StatusSuccess,
		From:   normalize.DayString(from),
		To:     normalize.DayString(to),
		Start:  p.now(),
	}
	logger := p.log.WithFields(log.Fields{"run_id": res.RunID, "from": res.From, "to": res.To})
	fail := func(err error) (Result, error) {
		res.Status = StatusError
		res.Error = err.Error()
		res.End = p.now()
		logger.WithError(err).Error("pipeline failed")
		return res, err
	}

	created, err := p.table.Ensure(ctx)
	if err != nil {
		return fail(fmt.Errorf("preparing table: %w", err))
	}
	if created {
		logger.Info("created table")
	}

	p.start("extract")
	records, extracted, err := p.extractor.Extract(ctx, from, to)
	p.stop("extract")
	if err != nil {
		return fail(fmt.Errorf("extracting: %w", err))
	}
	res.Files = extracted.Files
	res.BadLines = extracted.BadLines
	if len(records) == 0 {
		logger.Info("no data found for the date range")
		res.End = p.now()
		return res, nil
	}

	p.start("transform")
	papers, transformed := p.transformer.Transform(records)
	p.stop("transform")

	p.start("write")
	written := p.writer.Write(ctx, p.dispatcher, papers)
	p.stop("write")

	res.Total = transformed.Input + transformed.Invalid
	res.Successful = written.Successful()
	res.Failed = transformed.Failed + transformed.Invalid + written.Failed
	res.New = written.New
	res.Updated = written.Updated
	res.Warnings = written.Warnings
	res.Batches = written.Batches

	checker := quality.NewChecker(p.thresholds, p.now)
	for _, pp := range papers {
		checker.Observe(quality.FromPaper(pp))
	}
	report := checker.Report()
	res.Quality = &report

	if p.sink != nil {
		p.start("columnar")
		files, err := p.writeColumnar(ctx, p.merged(ctx, logger, papers))
		p.stop("columnar")
		res.OutputFiles = files
		if err != nil {
			return fail(fmt.Errorf("writing parquet: %w", err))
		}
	}

	if p.metrics != nil {
		p.metrics.Record("total_records", float64(res.Total))
		p.metrics.Record("successful_records", float64(res.Successful))
		p.metrics.Record("failed_records", float64(res.Failed))
		p.metrics.Record("new_records", float64(res.New))
		p.metrics.Record("updated_records", float64(res.Updated))
	}

	res.End = p.now()
	logger.WithFields(log.Fields{
		"total":      res.Total,
		"successful": res.Successful,
		"failed":     res.Failed,
		"new":        res.New,
		"updated":    res.Updated,
	}).Info("pipeline complete")
	return res, nil
}

// merged replaces each paper by its stored record. Papers whose record cannot
// be read keep their transformed form.
func (p *Pipeline) merged(ctx context.Context, logger log.FieldLogger, papers []paper.Paper) []paper.Paper {
	out := make([]paper.Paper, 0, len(papers))
	for _, pp := range papers {
		it, err := p.table.Get(ctx, pp.PaperID)
		if err != nil {
			logger.WithError(err).WithField("paper_id", pp.PaperID).Warn("reading merged record, using transformed record")
			out = append(out, pp)
			continue
		}
		if it == nil {
			out = append(out, pp)
			continue
		}
		stored, err := paper.FromItem(it)
		if err != nil {
			logger.WithError(err).WithField("paper_id", pp.PaperID).Warn("decoding merged record, using transformed record")
			out = append(out, pp)
			continue
		}
		out = append(out, stored)
	}
	return out
}

func (p *Pipeline) writeColumnar(ctx context.Context, papers []paper.Paper) ([]string, error) {
	parts := make(map[string][]Row)
	for _, pp := range papers {
		day := p.now()
		if pp.SubmittedDate != nil {
			day = pp.SubmittedDate.Time
		}
		part := columnar.Partition(day)
		parts[part] = append(parts[part], RowOf(pp))
	}
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var files []string
	for _, part := range keys {
		loc, err := p.sink.Write(ctx, part, parts[part])
		if err != nil {
			return files, err
		}
		files = append(files, loc)
	}
	return files, nil
}
