// Package config loads arx configuration from a YAML file and ARX_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/paperflow/arxetl/internal/dispatch"
	"github.com/paperflow/arxetl/internal/harvest"
	"github.com/paperflow/arxetl/internal/history"
	"github.com/paperflow/arxetl/internal/metrics"
	"github.com/paperflow/arxetl/internal/oaipmh"
	"github.com/paperflow/arxetl/internal/quality"
	"github.com/paperflow/arxetl/internal/table"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "arx"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ARX_"
)

// Table backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Backends lists the supported table backends.
var Backends = []string{BackendDynamoDB, BackendSQLite, BackendPostgres, BackendMemory}

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRange is returned when a date range is empty or inverted.
	ErrInvalidRange = errors.New("invalid date range")
)

// Config is the complete arx configuration.
type Config struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
	Bucket  string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region  string `yaml:"region" json:"region"`
	UseS3   bool   `yaml:"use_s3" json:"use_s3"`

	Table    TableConfig        `yaml:"table" json:"table"`
	Dispatch DispatchConfig     `yaml:"dispatch" json:"dispatch"`
	Harvest  HarvestConfig      `yaml:"harvest" json:"harvest"`
	Columnar ColumnarConfig     `yaml:"columnar" json:"columnar"`
	Metrics  MetricsConfig      `yaml:"metrics" json:"metrics"`
	Quality  quality.Thresholds `yaml:"quality" json:"quality"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// TableConfig selects and sizes the key-value table.
type TableConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Name          string `yaml:"name" json:"name"`
	SQLitePath    string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
	PostgresURL   string `yaml:"postgres_url,omitempty" json:"postgres_url,omitempty"`
	Endpoint      string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // DynamoDB endpoint override
	ReadCapacity  int64  `yaml:"read_capacity" json:"read_capacity"`
	WriteCapacity int64  `yaml:"write_capacity" json:"write_capacity"`
}

// DispatchConfig controls batched table writes.
type DispatchConfig struct {
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	Workers         int           `yaml:"workers" json:"workers"`
	MaxInFlight     int           `yaml:"max_in_flight" json:"max_in_flight"`
	Pause           time.Duration `yaml:"pause" json:"pause"`
	SequentialPause time.Duration `yaml:"sequential_pause" json:"sequential_pause"`
	BatchPause      time.Duration `yaml:"batch_pause" json:"batch_pause"`
	Parallel        bool          `yaml:"parallel" json:"parallel"`
}

// HarvestConfig controls the OAI-PMH harvester.
type HarvestConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
	RateLimit time.Duration `yaml:"rate_limit" json:"rate_limit"` // minimum delay between requests
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// ColumnarConfig controls parquet output.
type ColumnarConfig struct {
	Output    string `yaml:"output" json:"output"`
	ChunkSize int    `yaml:"chunk_size" json:"chunk_size"`
}

// MetricsConfig controls CloudWatch publishing.
type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch" json:"cloudwatch"`
	Namespace  string `yaml:"namespace" json:"namespace"`
	JobName    string `yaml:"job_name" json:"job_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	d := dispatch.DefaultConfig()
	return Config{
		DataDir: "data",
		Region:  "ap-northeast-1",
		Table: TableConfig{
			Backend:       BackendDynamoDB,
			Name:          table.DefaultName,
			ReadCapacity:  table.DefaultReadUnits,
			WriteCapacity: table.DefaultWriteUnits,
		},
		Dispatch: DispatchConfig{
			BatchSize:       d.BatchSize,
			Workers:         d.Workers,
			MaxInFlight:     d.MaxInFlight,
			Pause:           d.Pause,
			SequentialPause: d.SequentialPause,
			BatchPause:      200 * time.Millisecond,
			Parallel:        d.Parallel,
		},
		Harvest: HarvestConfig{
			BaseURL:   oaipmh.BaseURL,
			BatchSize: harvest.DefaultBatchSize,
			RateLimit: oaipmh.DefaultInterval,
			UserAgent: oaipmh.DefaultUserAgent,
		},
		Columnar: ColumnarConfig{
			Output:    "processed",
			ChunkSize: history.DefaultChunkSize,
		},
		Metrics: MetricsConfig{
			Namespace: metrics.DefaultNamespace,
			JobName:   metrics.DefaultJobName,
		},
		Quality:   quality.DefaultThresholds(),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Path returns the default config file path.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/arx/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load reads the configuration. An empty path means Path(), and a missing
// default file yields the defaults. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path()
	}
	if path != "" {
		data, err := os.ReadFile(ExpandPath(path))
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.Table.SQLitePath = ExpandPath(cfg.Table.SQLitePath)
	return cfg, nil
}

// ApplyEnv overrides fields from ARX_ variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":          &c.DataDir,
		"BUCKET":            &c.Bucket,
		"REGION":            &c.Region,
		"TABLE_BACKEND":     &c.Table.Backend,
		"TABLE_NAME":        &c.Table.Name,
		"SQLITE_PATH":       &c.Table.SQLitePath,
		"POSTGRES_URL":      &c.Table.PostgresURL,
		"DYNAMODB_ENDPOINT": &c.Table.Endpoint,
		"COLUMNAR_OUTPUT":   &c.Columnar.Output,
		"LOG_LEVEL":         &c.LogLevel,
		"LOG_FORMAT":        &c.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"USE_S3":     &c.UseS3,
		"CLOUDWATCH": &c.Metrics.CloudWatch,
	}
	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a boolean", ErrInvalidConfig, EnvPrefix, name, v)
		}
		*dst = b
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch c.Table.Backend {
	case BackendDynamoDB, BackendMemory:
	case BackendSQLite:
		if c.Table.SQLitePath == "" && c.DataDir == "" {
			bad("sqlite backend needs table.sqlite_path or data_dir")
		}
	case BackendPostgres:
		if c.Table.PostgresURL == "" {
			bad("postgres backend needs table.postgres_url")
		}
	default:
		bad("unknown table backend %q (valid: %s)", c.Table.Backend, strings.Join(Backends, ", "))
	}
	if c.Table.Name == "" {
		bad("table.name is empty")
	}
	if c.Table.ReadCapacity < 1 || c.Table.WriteCapacity < 1 {
		bad("table capacity must be positive")
	}

	if c.Dispatch.BatchSize < 1 || c.Dispatch.BatchSize > dispatch.MaxBatchSize {
		bad("dispatch.batch_size %d outside 1..%d", c.Dispatch.BatchSize, dispatch.MaxBatchSize)
	}
	if c.Dispatch.Workers < 1 {
		bad("dispatch.workers must be at least 1")
	}
	if c.Harvest.BatchSize < 1 {
		bad("harvest.batch_size must be at least 1")
	}
	if c.Columnar.ChunkSize < 1 {
		bad("columnar.chunk_size must be at least 1")
	}
	if c.UseS3 && c.Bucket == "" {
		bad("use_s3 needs a bucket")
	}
	if c.DataDir == "" && !c.UseS3 {
		bad("data_dir is empty")
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		bad("log_level: %v", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		bad("log_format %q (valid: text, json)", c.LogFormat)
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to print: the password in the Postgres URL
// is masked.
func (c Config) Redacted() Config {
	if c.Table.PostgresURL == "" {
		return c
	}
	u, err := url.Parse(c.Table.PostgresURL)
	if err != nil {
		c.Table.PostgresURL = "xxxxx"
		return c
	}
	c.Table.PostgresURL = u.Redacted()
	return c
}

// SQLitePath returns the configured database path, defaulting to a file in
// the data directory.
func (c Config) SQLitePath() string {
	if c.Table.SQLitePath != "" {
		return c.Table.SQLitePath
	}
	return filepath.Join(c.DataDir, "arxiv.db")
}

// DispatchConfig converts the settings into a dispatcher configuration.
func (d DispatchConfig) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		BatchSize:       d.BatchSize,
		Workers:         d.Workers,
		MaxInFlight:     d.MaxInFlight,
		Pause:           d.Pause,
		SequentialPause: d.SequentialPause,
		Parallel:        d.Parallel,
	}
}

// ParseRange parses a [from, to) pair of YYYY-MM-DD days.
func ParseRange(from, to string) (time.Time, time.Time, error) {
	f, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %q: %v", ErrInvalidRange, from, err)
	}
	t, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to %q: %v", ErrInvalidRange, to, err)
	}
	if !t.After(f) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is not before %s", ErrInvalidRange, from, to)
	}
	return f, t, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}

// Logger builds a logger from the log settings.
func (c Config) Logger() (*log.Logger, error) {
	l := log.New()
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	l.SetLevel(level)
	l.SetOutput(os.Stderr)
	if c.LogFormat == "json" {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}
