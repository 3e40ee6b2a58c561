package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paperflow/arxetl/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after the config file, .env and ARX_ variables
have been applied.

Usage:
  arx config                 # JSON
  arx config --human         # YAML, ready to save as config.yml
  arx config --config x.yml  # a different config file`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

// ConfigResponse is the response for the config command.
type ConfigResponse struct {
	Path   string        `json:"path"`
	Config config.Config `json:"config"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	shown := cfg.Redacted()
	if humanOutput {
		data, err := yaml.Marshal(shown)
		if err != nil {
			exitWithError(ExitError, "encoding config: %v", err)
		}
		outputHuman("# %s\n%s", path, data)
		return nil
	}
	outputJSON(ConfigResponse{Path: path, Config: shown})
	return nil
}
