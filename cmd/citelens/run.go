package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/matsen/citelens/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run [folder]",
	Short: "Classify the citations in every PDF of a folder",
	Long: `Extract and classify every PDF directly inside folder (default: input_dir
from the configuration) and write one row per citation to the output table.

Documents that fail are reported and skipped; the table is written even if
every document failed. The output format follows the extension of --output
(.csv or .xlsx).`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP(flagOutput, "o", "", "Output table path (.csv or .xlsx)")
	runCmd.Flags().StringP(flagTarget, "t", "", "Title of the cited publication")
	runCmd.Flags().IntP(flagConcurrency, "j", 0, "Maximum documents processed at once")
	runCmd.Flags().String(flagStrategy, "", "Extraction strategy: layout, plain, chinese, mixed")
	runCmd.Flags().Bool(flagSort, false, "Order rows by filename for reproducible output")
}

func runRun(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig(cmd)
	if len(args) == 1 {
		cfg.InputDir = args[0]
	}
	mustValidate(cfg)

	ext := mustNewExtractor(cfg)
	cls := mustNewClassifier(cfg)

	ctx, stop := signalContext()
	defer stop()

	summary, err := newRunner(cfg, ext, cls).Run(ctx, cfg.InputDir)
	if err != nil {
		if errors.Is(err, report.ErrWrite) {
			exitWithError(ExitWriteError, "%v", err)
		}
		exitWithError(ExitError, "%v", err)
	}
	if isInterrupted(ctx.Err()) {
		logger.Warn("run interrupted; unfinished documents recorded as failures")
	}

	if humanOutput {
		printSummary(summary)
	} else {
		outputJSON(summary)
	}
}
