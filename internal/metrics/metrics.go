// Package metrics collects run timings and counts and publishes them to
// CloudWatch.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Defaults.
const (
	DefaultNamespace = "ArxivProcessor"
	DefaultJobName   = "arxiv-processor"

	// BatchSize is the number of datums sent per PutMetricData call.
	BatchSize = 20

	durationSuffix = "_duration"
)

// Publish statuses.
const (
	StatusSkipped = "skipped"
	StatusSuccess = "success"
)

// PublishResult describes a Publish call.
type PublishResult struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Published int    `json:"metrics_published"`
}

// Collector records named values. It is safe for concurrent use.
type Collector struct {
	client    cloudwatchiface.CloudWatchAPI
	namespace string
	jobName   string
	runID     string
	now       func() time.Time
	log       log.FieldLogger

	mu      sync.Mutex
	values  map[string]float64
	started map[string]time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithCloudWatch enables publishing through client.
func WithCloudWatch(client cloudwatchiface.CloudWatchAPI) Option {
	return func(c *Collector) { c.client = client }
}

// WithNamespace sets the CloudWatch namespace.
func WithNamespace(ns string) Option {
	return func(c *Collector) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithJobName sets the JobName dimension.
func WithJobName(name string) Option {
	return func(c *Collector) {
		if name != "" {
			c.jobName = name
		}
	}
}

// WithRunID sets the RunId dimension. The default is a random UUID.
func WithRunID(id string) Option {
	return func(c *Collector) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithClock sets the clock used by timers.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(c *Collector) { c.log = l }
}

// New creates a Collector. Without WithCloudWatch, Publish is skipped.
func New(opts ...Option) *Collector {
	c := &Collector{
		namespace: DefaultNamespace,
		jobName:   DefaultJobName,
		runID:     uuid.NewString(),
		now:       time.Now,
		log:       log.StandardLogger(),
		values:    make(map[string]float64),
		started:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCloudWatch returns a CloudWatch client for region using the default
// credential chain.
func NewCloudWatch(region string) (cloudwatchiface.CloudWatchAPI, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return cloudwatch.New(sess), nil
}

// RunID returns the run identifier.
func (c *Collector) RunID() string {
	return c.runID
}

// Start starts (or restarts) the timer name.
func (c *Collector) Start(name string) {
	c.mu.Lock()
	c.started[name] = c.now()
	c.mu.Unlock()
}

// Stop ends the timer name and records <name>_duration in seconds. Stopping a
// timer that was never started records nothing and returns zero.
func (c *Collector) Stop(name string) time.Duration {
	c.mu.Lock()
	start, ok := c.started[name]
	if !ok {
		c.mu.Unlock()
		c.log.WithField("timer", name).Warn("timer was not started")
		return 0
	}
	delete(c.started, name)
	c.mu.Unlock()

	d := c.now().Sub(start)
	c.Record(name+durationSuffix, d.Seconds())
	return d
}

// Record sets the metric name to value.
func (c *Collector) Record(name string, value float64) {
	c.mu.Lock()
	c.values[name] = value
	c.mu.Unlock()
	c.log.WithFields(log.Fields{"metric": name, "value": value}).Debug("recorded metric")
}

// Metrics returns a copy of every recorded value.
func (c *Collector) Metrics() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func unit(name string) string {
	if strings.HasSuffix(name, durationSuffix) {
		return cloudwatch.StandardUnitSeconds
	}
	return cloudwatch.StandardUnitCount
}

// Publish sends every recorded value to CloudWatch in batches of BatchSize.
func (c *Collector) Publish(ctx context.Context) (PublishResult, error) {
	if c.client == nil {
		c.log.Info("CloudWatch metrics disabled, not publishing")
		return PublishResult{Status: StatusSkipped, Reason: "CloudWatch disabled"}, nil
	}

	values := c.Metrics()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	dims := []*cloudwatch.Dimension{
		{Name: aws.String("JobName"), Value: aws.String(c.jobName)},
		{Name: aws.String("RunId"), Value: aws.String(c.runID)},
	}
	ts := c.now()

	data := make([]*cloudwatch.MetricDatum, 0, len(names))
	for _, name := range names {
		data = append(data, &cloudwatch.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(values[name]),
			Unit:       aws.String(unit(name)),
			Dimensions: dims,
			Timestamp:  aws.Time(ts),
		})
	}

	published := 0
	for start := 0; start < len(data); start += BatchSize {
		end := min(start+BatchSize, len(data))
		_, err := c.client.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return PublishResult{Published: published}, fmt.Errorf("publishing metrics: %w", err)
		}
		published += end - start
	}

	c.log.WithFields(log.Fields{
		"namespace": c.namespace,
		"metrics":   published,
	}).Info("published metrics to CloudWatch")
	return PublishResult{Status: StatusSuccess, Published: published}, nil
}
