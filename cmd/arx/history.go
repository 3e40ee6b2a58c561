package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/paperflow/arxetl/internal/columnar"
	"github.com/paperflow/arxetl/internal/extract"
	"github.com/paperflow/arxetl/internal/history"
	"github.com/paperflow/arxetl/internal/raw"
	"github.com/paperflow/arxetl/internal/rawstore"
)

var (
	historyInput     string
	historyFormat    string
	historyFrom      string
	historyTo        string
	historyOutput    string
	historyInputS3   bool
	historyOutputS3  bool
	historyChunkSize int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyInput, "input", "", "Single JSON lines file to process (a key with --input-s3)")
	historyCmd.Flags().StringVar(&historyFormat, "format", string(raw.FormatArXiv), "Format of the --input file (arXiv or arXivRaw)")
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "First day of raw files to process (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "Day after the last day of raw files to process (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyOutput, "output", "", "Output directory (a key prefix with --output-s3, default: columnar.output under the store)")
	historyCmd.Flags().BoolVar(&historyInputS3, "input-s3", false, "Read input from the S3 bucket")
	historyCmd.Flags().BoolVar(&historyOutputS3, "output-s3", false, "Write parquet files to the S3 bucket")
	historyCmd.Flags().IntVar(&historyChunkSize, "chunk-size", 0, "Rows per parquet file (default: columnar.chunk_size)")
	historyCmd.MarkFlagsMutuallyExclusive("input", "from")
	historyCmd.MarkFlagsRequiredTogether("from", "to")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Convert raw records into partitioned parquet files",
	Long: `Clean raw records into flat rows and write them as parquet files
partitioned by submission day (year=YYYY/month=MM/day=DD/part-NNNNN.parquet).

Input is either one JSON lines file (--input) or every raw file for a
date range (--from/--to). The table is not touched.

Example:
  arx history --input arxiv-metadata.jsonl --output out
  arx history --from 2024-01-01 --to 2024-02-01 --input-s3 --output-s3`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		in  history.Input
		err error
	)
	switch {
	case historyInput != "":
		format, ferr := raw.ParseFormat(historyFormat)
		if ferr != nil {
			exitWithError(ExitError, "%v", ferr)
		}
		store, key := inputStore(historyInput)
		in, err = history.FromFile(ctx, store, key, format)
	case historyFrom != "":
		from, to := mustParseRange(historyFrom, historyTo)
		ext := extract.New(mustOpenStore(historyInputS3 || cfg.UseS3), extract.WithLogger(logger))
		in, err = history.FromStore(ctx, ext, from, to)
	default:
		exitWithError(ExitError, "either --input or --from/--to is required")
	}
	if err != nil {
		exitWithError(ExitDataError, "reading input: %v", err)
	}
	if len(in.Records) == 0 {
		exitWithError(ExitDataError, "no records found in input")
	}

	sink := outputSink(historyOutput)

	chunkSize := cfg.Columnar.ChunkSize
	if historyChunkSize > 0 {
		chunkSize = historyChunkSize
	}

	m := newMetrics()
	proc := history.New(sink,
		history.WithLogger(logger),
		history.WithChunkSize(chunkSize),
		history.WithThresholds(cfg.Quality),
		history.WithMetrics(m),
	)
	res, err := proc.Process(ctx, in)
	publishMetrics(ctx, m)

	if humanOutput {
		outputHuman("Historical processing: %s\n", res.Status)
		outputHuman("  Input files:  %d\n", res.ProcessedFiles)
		outputHuman("  Records:      %d total, %d ok, %d failed\n", res.Total, res.Successful, res.Failed)
		outputHuman("  Output files: %d\n", len(res.OutputFiles))
		outputHuman("  Quality:      %s (%s)\n", res.Quality.Status, res.Quality.Message)
		outputHuman("  Duration:     %s\n", formatDuration(res.End.Sub(res.Start)))
	} else {
		outputJSON(res)
	}

	if err != nil {
		exitAfterResult(ExitError, err)
	}
	return nil
}

// inputStore resolves --input into a store and a key.
func inputStore(input string) (rawstore.Store, string) {
	if historyInputS3 {
		return mustOpenBucket(), input
	}
	return rawstore.NewLocal(filepath.Dir(input)), filepath.Base(input)
}

// outputSink resolves --output into a parquet writer. Without --output the
// files go under columnar.output in the configured store.
func outputSink(output string) *columnar.Writer[history.Row] {
	if output == "" {
		store := mustOpenStore(historyOutputS3 || cfg.UseS3)
		return columnar.NewWriter[history.Row](store, cfg.Columnar.Output, columnar.WithLogger(logger))
	}
	if historyOutputS3 {
		return columnar.NewWriter[history.Row](mustOpenBucket(), output, columnar.WithLogger(logger))
	}
	return columnar.NewWriter[history.Row](rawstore.NewLocal(output), "", columnar.WithLogger(logger))
}
