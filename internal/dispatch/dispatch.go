// Package dispatch drives batches of records through a batch function with
// bounded concurrency and best-effort error accounting.
package dispatch

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Defaults tuned for a table with 5 provisioned write units.
const (
	DefaultBatchSize       = 25
	MaxBatchSize           = 25
	DefaultWorkers         = 5
	DefaultMaxInFlight     = 5
	DefaultPause           = time.Second
	DefaultSequentialPause = 500 * time.Millisecond
)

// Counts are per-record outcomes.
type Counts struct {
	New      int `json:"new_records"`
	Updated  int `json:"updated_records"`
	Failed   int `json:"failed_records"`
	Warnings int `json:"warnings"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.New += other.New
	c.Updated += other.Updated
	c.Failed += other.Failed
	c.Warnings += other.Warnings
}

// Successful is the number of records that were written.
func (c Counts) Successful() int {
	return c.New + c.Updated
}

// BatchFunc processes one batch in order. A returned error marks the whole
// batch as failed and its counts are discarded.
type BatchFunc[T any] func(ctx context.Context, batch []T) (Counts, error)

// Config controls batching and throttling.
type Config struct {
	BatchSize       int
	Workers         int
	MaxInFlight     int
	Pause           time.Duration // after each completion, before the next launch
	SequentialPause time.Duration // between batches when Parallel is false
	Parallel        bool
}

// DefaultConfig returns the parallel configuration with default limits.
func DefaultConfig() Config {
	return Config{
		BatchSize:       DefaultBatchSize,
		Workers:         DefaultWorkers,
		MaxInFlight:     DefaultMaxInFlight,
		Pause:           DefaultPause,
		SequentialPause: DefaultSequentialPause,
		Parallel:        true,
	}
}

// Window is the number of batches allowed to run at once.
func (c Config) Window() int {
	n := c.Workers
	if c.MaxInFlight > 0 && c.MaxInFlight < n {
		n = c.MaxInFlight
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (c Config) batchSize() int {
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// Result summarizes a dispatch run.
type Result struct {
	Counts
	Batches       int           `json:"batches"`
	FailedBatches int           `json:"failed_batches"`
	Duration      time.Duration `json:"duration"`
}

// Dispatcher runs batches.
type Dispatcher[T any] struct {
	cfg   Config
	log   log.FieldLogger
	sleep func(time.Duration)
}

type settings struct {
	log   log.FieldLogger
	sleep func(time.Duration)
}

// Option configures a Dispatcher.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(s *settings) { s.log = l }
}

// WithSleep replaces time.Sleep for the inter-batch pause.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *settings) { s.sleep = sleep }
}

// New creates a Dispatcher.
func New[T any](cfg Config, opts ...Option) *Dispatcher[T] {
	s := settings{
		log:   log.StandardLogger(),
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Dispatcher[T]{cfg: cfg, log: s.log, sleep: s.sleep}
}

// Split cuts records into contiguous batches of at most size records.
func Split[T any](records []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var batches [][]T
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}

type outcome struct {
	index  int
	size   int
	counts Counts
	err    error
}

// Run processes every record and returns the aggregate counts.
// It returns only after all launched batches have finished.
func (d *Dispatcher[T]) Run(ctx context.Context, records []T, fn BatchFunc[T]) Result {
	start := time.Now()
	batches := Split(records, d.cfg.batchSize())
	res := Result{Batches: len(batches)}
	if len(batches) == 0 {
		return res
	}

	if !d.cfg.Parallel || len(batches) == 1 {
		d.runSequential(ctx, batches, fn, &res)
	} else {
		d.runWindow(ctx, batches, fn, &res)
	}

	res.Duration = time.Since(start)
	d.log.WithFields(log.Fields{
		"batches":        res.Batches,
		"failed_batches": res.FailedBatches,
		"new":            res.New,
		"updated":        res.Updated,
		"failed":         res.Failed,
		"duration":       res.Duration.String(),
	}).Info("dispatch complete")
	return res
}

func (d *Dispatcher[T]) runSequential(ctx context.Context, batches [][]T, fn BatchFunc[T], res *Result) {
	for i, batch := range batches {
		d.collect(res, execute(ctx, i, batch, fn))
		if i < len(batches)-1 && d.cfg.SequentialPause > 0 {
			d.sleep(d.cfg.SequentialPause)
		}
	}
}

// runWindow keeps up to Window batches in flight. Each completion frees a
// slot, which is refilled after the configured pause.
func (d *Dispatcher[T]) runWindow(ctx context.Context, batches [][]T, fn BatchFunc[T], res *Result) {
	done := make(chan outcome)
	next, active := 0, 0

	launch := func() {
		i := next
		next++
		active++
		go func() { done <- execute(ctx, i, batches[i], fn) }()
	}

	window := d.cfg.Window()
	d.log.WithFields(log.Fields{
		"batches": len(batches),
		"window":  window,
	}).Debug("dispatching batches")

	for next < len(batches) && active < window {
		launch()
	}
	for active > 0 {
		o := <-done
		active--
		d.collect(res, o)

		if next < len(batches) {
			if d.cfg.Pause > 0 {
				d.sleep(d.cfg.Pause)
			}
			launch()
		}
	}
}

func (d *Dispatcher[T]) collect(res *Result, o outcome) {
	if o.err != nil {
		res.FailedBatches++
		res.Failed += o.size
		d.log.WithFields(log.Fields{
			"batch": o.index + 1,
			"size":  o.size,
		}).WithError(o.err).Error("batch failed")
		return
	}
	res.Add(o.counts)
	d.log.WithFields(log.Fields{
		"batch":   o.index + 1,
		"new":     o.counts.New,
		"updated": o.counts.Updated,
		"failed":  o.counts.Failed,
	}).Debug("batch complete")
}

// execute runs fn and turns a panic into a batch failure.
func execute[T any](ctx context.Context, index int, batch []T, fn BatchFunc[T]) (o outcome) {
	o = outcome{index: index, size: len(batch)}
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("batch %d panicked: %v", index+1, r)
		}
	}()
	o.counts, o.err = fn(ctx, batch)
	return o
}
