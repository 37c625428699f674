package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/citelens/internal/config"
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "Print the extracted text of one PDF",
	Long: `Extract and normalize the text of a single PDF with the configured strategy.
Useful for checking what the model will see before running a batch.`,
	Args: cobra.ExactArgs(1),
	Run:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().String(flagStrategy, "", "Extraction strategy: layout, plain, chinese, mixed")
}

func runExtract(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig(cmd)
	if err := config.ValidateStrategy(cfg.Extract.Strategy); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	ext := mustNewExtractor(cfg)

	ctx, stop := signalContext()
	defer stop()

	text, err := ext.Extract(ctx, args[0])
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("%s\n", text)
		return
	}
	outputJSON(ExtractResponse{
		File:     filepath.Base(args[0]),
		Strategy: string(ext.Strategy()),
		Chars:    len([]rune(text)),
		Text:     text,
	})
}
