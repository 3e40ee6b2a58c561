package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/paperflow/arxetl/internal/config"
	"github.com/paperflow/arxetl/internal/metrics"
	"github.com/paperflow/arxetl/internal/rawstore"
	"github.com/paperflow/arxetl/internal/table"
	"github.com/paperflow/arxetl/internal/table/dynamo"
	"github.com/paperflow/arxetl/internal/table/postgres"
	"github.com/paperflow/arxetl/internal/table/sqlite"
)

// mustOpenTable opens the configured table backend, exits on error.
// The caller is responsible for calling Close() on the returned table.
func mustOpenTable(ctx context.Context) table.Table {
	var (
		t   table.Table
		err error
	)
	switch cfg.Table.Backend {
	case config.BackendDynamoDB:
		t, err = dynamo.Open(cfg.Region, cfg.Table.Endpoint, cfg.Table.Name,
			dynamo.WithCapacity(cfg.Table.ReadCapacity, cfg.Table.WriteCapacity),
			dynamo.WithLogger(logger))
	case config.BackendSQLite:
		path := cfg.SQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			exitWithError(ExitConfigError, "creating database directory: %v", err)
		}
		t, err = sqlite.Open(path, cfg.Table.Name)
	case config.BackendPostgres:
		t, err = postgres.Open(ctx, cfg.Table.PostgresURL, cfg.Table.Name)
	case config.BackendMemory:
		logger.Warn("using the in-memory table, nothing will be kept after exit")
		t = table.NewMemory()
	default:
		exitWithError(ExitConfigError, "unknown table backend %q", cfg.Table.Backend)
	}
	if err != nil {
		exitWithError(ExitConfigError, "opening %s table: %v", cfg.Table.Backend, err)
	}
	return t
}

// mustOpenStore opens the raw data store: the S3 bucket when useS3 is set,
// the data directory otherwise.
func mustOpenStore(useS3 bool) rawstore.Store {
	if !useS3 {
		return rawstore.NewLocal(cfg.DataDir)
	}
	return mustOpenBucket()
}

// mustOpenBucket opens the configured S3 bucket, exits on error.
func mustOpenBucket() rawstore.Store {
	if cfg.Bucket == "" {
		exitWithError(ExitConfigError, "S3 storage needs a bucket (set bucket or ARX_BUCKET)")
	}
	s, err := rawstore.OpenS3(cfg.Region, cfg.Bucket)
	if err != nil {
		exitWithError(ExitConfigError, "opening bucket %s: %v", cfg.Bucket, err)
	}
	return s
}

// newMetrics builds the run's metric collector, with CloudWatch publishing
// when enabled.
func newMetrics() *metrics.Collector {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithJobName(cfg.Metrics.JobName),
		metrics.WithLogger(logger),
	}
	if cfg.Metrics.CloudWatch {
		cw, err := metrics.NewCloudWatch(cfg.Region)
		if err != nil {
			exitWithError(ExitConfigError, "creating CloudWatch client: %v", err)
		}
		opts = append(opts, metrics.WithCloudWatch(cw))
	}
	return metrics.New(opts...)
}

// publishMetrics sends the collected metrics. A failure is logged only.
func publishMetrics(ctx context.Context, m *metrics.Collector) {
	res, err := m.Publish(ctx)
	if err != nil {
		logger.WithError(err).Warn("publishing metrics failed")
		return
	}
	logger.WithField("status", res.Status).Debug("metrics published")
}
