package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/matsen/citelens/internal/batch"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is the JSON body printed when a command fails.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ExtractResponse is the response for the extract command.
type ExtractResponse struct {
	File     string `json:"file"`
	Strategy string `json:"strategy"`
	Chars    int    `json:"chars"`
	Text     string `json:"text"`
}

func printSummary(s batch.Summary) {
	outputHuman("Processed %d files: %d succeeded, %d failed\n", s.Files, s.Succeeded, s.Failed)
	outputHuman("Found %d citations; wrote %d rows to %s\n", s.Citations, s.Rows, s.Output)
	if len(s.Failures) == 0 {
		return
	}
	outputHuman("\nFailures:\n")
	for _, f := range s.Failures {
		outputHuman("  %s  %s  %s\n", f.Filename, f.Code, f.Detail)
	}
}
