package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/citelens/internal/citation"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <pdf>",
	Short: "Extract and classify one PDF",
	Long: `Run extraction and classification on a single PDF and print its record.
Nothing is written to the output table. Exits 1 if the document failed.`,
	Args: cobra.ExactArgs(1),
	Run:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringP(flagTarget, "t", "", "Title of the cited publication")
	classifyCmd.Flags().String(flagStrategy, "", "Extraction strategy: layout, plain, chinese, mixed")
}

func runClassify(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig(cmd)
	mustValidate(cfg)

	ext := mustNewExtractor(cfg)
	cls := mustNewClassifier(cfg)

	ctx, stop := signalContext()
	defer stop()

	rec := newRunner(cfg, ext, cls).Process(ctx, args[0])

	if humanOutput {
		printRecord(rec, cfg.QuoteMaxChars)
	} else {
		outputJSON(rec)
	}
	if !rec.OK() {
		os.Exit(ExitError)
	}
}

func printRecord(rec citation.Record, quoteMax int) {
	outputHuman("File: %s\n", rec.Filename)
	if !rec.OK() {
		outputHuman("Failed: %s: %s\n", rec.Failure.Code, rec.Failure.Detail)
		return
	}
	p := rec.Paper
	outputHuman("Title: %s\n", p.Title)
	if p.Journal != "" {
		outputHuman("Journal: %s\n", p.Journal)
	}
	if len(p.Authors) > 0 {
		outputHuman("Authors: %d\n", len(p.Authors))
	}
	if len(p.Citations) == 0 {
		outputHuman("No citations found\n")
		return
	}
	outputHuman("\nCitations (%d):\n", len(p.Citations))
	for i, c := range p.Citations {
		outputHuman("  %d. [%s, p. %s] %s\n", i+1, c.Sentiment, c.Page, citation.TruncateQuote(c.Quote, quoteMax))
	}
}
