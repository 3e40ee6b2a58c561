// Package main provides the arx CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/paperflow/arxetl/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	logLevel    string
)

// cfg and logger are set by PersistentPreRunE before any command runs.
var (
	cfg    config.Config
	logger *log.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// SilenceErrors is set, so cobra errors are printed here.
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arx",
	Short: "arXiv metadata ETL",
	Long: `arx harvests arXiv metadata over OAI-PMH and loads it into a paper table.

Stages:
  - collect: harvest arXiv and arXivRaw records into raw JSON lines files
  - process: pair, normalize and merge raw records into the paper table
  - history: clean raw records into partitioned parquet files
  - query:   read papers and statistics back from the table

All commands output JSON by default. Use --human for text.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/arx/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.Version = Version
}

// setup loads .env, the config file and ARX_ variables, then builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	c, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if err := c.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	l, err := c.Logger()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	cfg, logger = c, l
	return nil
}

// mustParseRange parses --from and --to, exits on error.
func mustParseRange(from, to string) (time.Time, time.Time) {
	if from == "" || to == "" {
		exitWithError(ExitError, "--from and --to are required")
	}
	f, t, err := config.ParseRange(from, to)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	return f, t
}
