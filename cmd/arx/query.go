package main

import (
	"errors"
	"sort"

	"github.com/spf13/cobra"

	"github.com/paperflow/arxetl/internal/paper"
	"github.com/paperflow/arxetl/internal/query"
)

var (
	queryLimit    int
	queryCategory string
	queryMinDays  float64
	queryMaxDays  float64
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.PersistentFlags().IntVarP(&queryLimit, "limit", "n", 0, "Maximum number of results")

	queryRangeCmd.Flags().StringVarP(&queryCategory, "category", "c", "", "Restrict to a primary category")
	queryUpdatesCmd.Flags().StringVarP(&queryCategory, "category", "c", "", "Restrict to a primary category")
	queryPublicationCmd.Flags().StringVarP(&queryCategory, "category", "c", "", "Restrict to a primary category")
	queryFrequencyCmd.Flags().Float64Var(&queryMinDays, "min", 0, "Minimum days between versions")
	queryFrequencyCmd.Flags().Float64Var(&queryMaxDays, "max", 0, "Maximum days between versions")

	queryCmd.AddCommand(queryPaperCmd, queryCategoryCmd, queryRangeCmd, queryAuthorCmd,
		queryFrequencyCmd, queryVersionsCmd, queryInstitutionsCmd, queryUpdatesCmd, queryPublicationCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read papers and statistics from the paper table",
}

var queryPaperCmd = &cobra.Command{
	Use:   "paper <id>",
	Short: "Show one paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		p, err := svc.Paper(cmd.Context(), args[0])
		if err != nil {
			exitQueryError(err)
		}
		if humanOutput {
			printPaper(p)
		} else {
			outputJSON(p)
		}
		return nil
	},
}

var queryCategoryCmd = &cobra.Command{
	Use:   "category <category>",
	Short: "List the most recently updated papers of a primary category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		papers, err := svc.ByCategory(cmd.Context(), args[0], queryLimit)
		if err != nil {
			exitQueryError(err)
		}
		outputPapers(papers)
		return nil
	},
}

var queryRangeCmd = &cobra.Command{
	Use:   "range <from> <to>",
	Short: "List papers updated between two days (inclusive)",
	Long: `List papers whose update_date falls between two YYYY-MM-DD days, both
inclusive. With --category the category index is used; otherwise the whole
table is scanned.

Example:
  arx query range 2024-01-01 2024-01-31 --category cs.LG`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		papers, err := svc.ByDateRange(cmd.Context(), args[0], args[1], queryCategory, queryLimit)
		if err != nil {
			exitQueryError(err)
		}
		outputPapers(papers)
		return nil
	},
}

var queryAuthorCmd = &cobra.Command{
	Use:   "author <name>",
	Short: "List papers with an author whose name contains <name>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		papers, err := svc.ByAuthor(cmd.Context(), args[0], queryLimit)
		if err != nil {
			exitQueryError(err)
		}
		outputPapers(papers)
		return nil
	},
}

var queryFrequencyCmd = &cobra.Command{
	Use:   "frequency",
	Short: "List papers by average days between versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var minDays, maxDays *float64
		if cmd.Flags().Changed("min") {
			minDays = &queryMinDays
		}
		if cmd.Flags().Changed("max") {
			maxDays = &queryMaxDays
		}
		svc, done := mustOpenQuery(cmd)
		defer done()
		papers, err := svc.ByUpdateFrequency(cmd.Context(), minDays, maxDays, queryLimit)
		if err != nil {
			exitQueryError(err)
		}
		outputPapers(papers)
		return nil
	},
}

var queryVersionsCmd = &cobra.Command{
	Use:   "versions <id>",
	Short: "Show the version history of a paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		versions, err := svc.Versions(cmd.Context(), args[0])
		if err != nil {
			exitQueryError(err)
		}
		if humanOutput {
			for _, v := range versions {
				outputHuman("%-4s %s\n", v.Version, v.Created)
			}
		} else {
			outputJSON(versions)
		}
		return nil
	},
}

var queryInstitutionsCmd = &cobra.Command{
	Use:   "institutions",
	Short: "Count submissions per institution",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		counts, err := svc.InstitutionCounts(cmd.Context(), queryLimit)
		if err != nil {
			exitQueryError(err)
		}
		if humanOutput {
			for _, c := range counts {
				outputHuman("%6d  %s\n", c.Count, c.Institution)
			}
		} else {
			outputJSON(counts)
		}
		return nil
	},
}

var queryUpdatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Average version count per primary category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		stats, err := svc.AverageUpdates(cmd.Context(), queryCategory)
		if err != nil {
			exitQueryError(err)
		}
		if humanOutput {
			for _, cat := range sortedKeys(stats) {
				s := stats[cat]
				outputHuman("%-20s %6.2f versions over %d papers\n", cat, s.AverageUpdates, s.TotalPapers)
			}
		} else {
			outputJSON(stats)
		}
		return nil
	},
}

var queryPublicationCmd = &cobra.Command{
	Use:   "publication",
	Short: "Days from submission to publication per primary category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done := mustOpenQuery(cmd)
		defer done()
		stats, err := svc.SubmissionToPublication(cmd.Context(), queryCategory)
		if err != nil {
			exitQueryError(err)
		}
		if humanOutput {
			for _, cat := range sortedKeys(stats) {
				s := stats[cat]
				outputHuman("%-20s avg %.1f days (min %.0f, max %.0f, n=%d)\n", cat, s.AverageDays, s.MinDays, s.MaxDays, s.SampleSize)
			}
		} else {
			outputJSON(stats)
		}
		return nil
	},
}

// mustOpenQuery opens the table behind a query service. The returned
// function closes it.
func mustOpenQuery(cmd *cobra.Command) (*query.Service, func()) {
	t := mustOpenTable(cmd.Context())
	return query.New(t, query.WithLogger(logger)), func() { t.Close() }
}

// exitQueryError maps a query failure to an exit code.
func exitQueryError(err error) {
	if errors.Is(err, query.ErrNotFound) {
		exitWithError(ExitDataError, "%v", err)
	}
	exitWithError(ExitError, "query failed: %v", err)
}

func outputPapers(papers []paper.Paper) {
	if humanOutput {
		printPapers(papers)
		return
	}
	if papers == nil {
		papers = []paper.Paper{}
	}
	outputJSON(papers)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
