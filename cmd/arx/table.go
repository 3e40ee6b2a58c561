package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.AddCommand(tableInitCmd)
}

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Manage the paper table",
}

var tableInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the paper table and its category index",
	Long: `Create the configured paper table with its (primary_category, update_date)
index when it does not exist, and wait until it is usable.

Example:
  arx table init
  ARX_TABLE_BACKEND=sqlite arx table init`,
	Args: cobra.NoArgs,
	RunE: runTableInit,
}

func runTableInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	t := mustOpenTable(ctx)
	defer t.Close()

	created, err := t.Ensure(ctx)
	if err != nil {
		exitWithError(ExitConfigError, "preparing table %s: %v", cfg.Table.Name, err)
	}

	if humanOutput {
		if created {
			outputHuman("Created %s table %s\n", cfg.Table.Backend, cfg.Table.Name)
		} else {
			outputHuman("Table %s already exists\n", cfg.Table.Name)
		}
	} else {
		outputJSON(StatusResponse{Status: "ready", Table: cfg.Table.Name, Created: created})
	}
	return nil
}
