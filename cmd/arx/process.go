package main

import (
	"github.com/spf13/cobra"

	"github.com/paperflow/arxetl/internal/columnar"
	"github.com/paperflow/arxetl/internal/dispatch"
	"github.com/paperflow/arxetl/internal/extract"
	"github.com/paperflow/arxetl/internal/paper"
	"github.com/paperflow/arxetl/internal/pipeline"
	"github.com/paperflow/arxetl/internal/writer"
)

var (
	processFrom       string
	processTo         string
	processS3         bool
	processWorkers    int
	processBatchSize  int
	processSequential bool
	processNoParquet  bool
)

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringVar(&processFrom, "from", "", "First day to process (YYYY-MM-DD, required)")
	processCmd.Flags().StringVar(&processTo, "to", "", "Day after the last day to process (YYYY-MM-DD, required)")
	processCmd.Flags().BoolVar(&processS3, "s3", false, "Read raw files from the S3 bucket instead of data_dir")
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "Concurrent write batches (default: dispatch.workers)")
	processCmd.Flags().IntVar(&processBatchSize, "batch-size", 0, "Records per write batch, at most 25 (default: dispatch.batch_size)")
	processCmd.Flags().BoolVar(&processSequential, "sequential", false, "Write batches one at a time")
	processCmd.Flags().BoolVar(&processNoParquet, "no-parquet", false, "Skip the parquet copy of the processed papers")
	processCmd.MarkFlagRequired("from")
	processCmd.MarkFlagRequired("to")
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Load raw records for a date range into the paper table",
	Long: `Read the raw files for [from, to), pair arXiv and arXivRaw records by id,
normalize them and merge them into the paper table.

Processed papers are also written as parquet under columnar.output,
partitioned by submitted date, unless --no-parquet is given.

Example:
  arx process --from 2024-01-01 --to 2024-01-08
  arx process --from 2024-01-01 --to 2024-01-02 --workers 4 --batch-size 10`,
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	from, to := mustParseRange(processFrom, processTo)

	dcfg := cfg.Dispatch.DispatchConfig()
	if processWorkers > 0 {
		dcfg.Workers = processWorkers
	}
	if processBatchSize > 0 {
		if processBatchSize > dispatch.MaxBatchSize {
			exitWithError(ExitError, "--batch-size %d exceeds %d", processBatchSize, dispatch.MaxBatchSize)
		}
		dcfg.BatchSize = processBatchSize
	}
	if processSequential {
		dcfg.Parallel = false
	}

	store := mustOpenStore(processS3 || cfg.UseS3)
	t := mustOpenTable(ctx)
	defer t.Close()

	m := newMetrics()
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithThresholds(cfg.Quality),
		pipeline.WithDispatcher(dispatch.New[paper.Paper](dcfg, dispatch.WithLogger(logger))),
		pipeline.WithWriter(writer.New(t, writer.WithLogger(logger), writer.WithBatchPause(cfg.Dispatch.BatchPause))),
	}
	if !processNoParquet && cfg.Columnar.Output != "" {
		sink := columnar.NewWriter[pipeline.Row](store, cfg.Columnar.Output, columnar.WithLogger(logger))
		opts = append(opts, pipeline.WithSink(sink))
	}

	ext := extract.New(store, extract.WithLogger(logger))
	res, err := pipeline.New(t, ext, opts...).Run(ctx, from, to)
	publishMetrics(ctx, m)

	if humanOutput {
		outputHuman("Run %s: %s (%s to %s)\n", res.RunID, res.Status, res.From, res.To)
		outputHuman("  Files:      %d (%d bad lines)\n", res.Files, res.BadLines)
		outputHuman("  Records:    %d total, %d ok, %d failed\n", res.Total, res.Successful, res.Failed)
		outputHuman("  Table:      %d new, %d updated, %d warnings in %d batches\n", res.New, res.Updated, res.Warnings, res.Batches)
		if res.Quality != nil {
			outputHuman("  Quality:    %s (%s)\n", res.Quality.Status, res.Quality.Message)
		}
		if len(res.OutputFiles) > 0 {
			outputHuman("  Parquet:    %d files\n", len(res.OutputFiles))
		}
		outputHuman("  Duration:   %s\n", formatDuration(res.End.Sub(res.Start)))
	} else {
		outputJSON(res)
	}

	if err != nil {
		exitAfterResult(ExitError, err)
	}
	return nil
}
