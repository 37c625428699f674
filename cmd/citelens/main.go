// Package main provides the citelens CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	verbose     bool
	logFormat   string

	// logger is configured by the root command before any subcommand runs.
	logger = logrus.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so cobra errors (bad flags, arg counts) are printed here
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "citelens",
	Short: "Classify how papers cite a target publication",
	Long: `citelens reads a folder of PDF papers, asks an LLM to find every passage
that cites a target publication, labels each citation positive, neutral or
negative, and writes one table row per citation.

Configuration comes from citelens.yml (or ~/.config/citelens/config.yml),
a .env file, CITELENS_* environment variables and command flags, in
increasing order of precedence.

Results are summarized as JSON by default; use --human for text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logger, logFormat, verbose, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", LogFormatText, "Log format: text or json")
	rootCmd.Version = Version
}
