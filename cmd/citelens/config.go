package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the config file, .env, environment
and flags. The API key is redacted. Output is YAML and can be saved as
citelens.yml.`,
	Args: cobra.NoArgs,
	Run:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig(cmd)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		exitWithError(ExitError, "encoding config: %v", err)
	}
	if err := enc.Close(); err != nil {
		exitWithError(ExitError, "encoding config: %v", err)
	}
}
