// Package batch runs extraction and classification over a folder of PDFs
// and writes the combined output table.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/citelens/internal/citation"
	"github.com/matsen/citelens/internal/report"
)

// DefaultMaxConcurrent is the worker pool size when none is configured.
const DefaultMaxConcurrent = 4

// Extractor turns one PDF into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Classifier finds the citations of targetTitle in a paper's text.
type Classifier interface {
	Classify(ctx context.Context, text, targetTitle string) (citation.Paper, error)
}

// Options configures a Runner.
type Options struct {
	TargetTitle   string
	MaxConcurrent int
	Output        string
	QuoteMaxChars int
	// SortRows orders records by filename before writing, so repeated runs
	// over the same input produce identical output.
	SortRows bool
}

// Runner processes every PDF of a folder on a bounded worker pool.
type Runner struct {
	extractor  Extractor
	classifier Classifier
	opts       Options
	log        logrus.FieldLogger
}

// NewRunner creates a Runner. A nil logger uses the logrus standard logger.
func NewRunner(ext Extractor, cls Classifier, opts Options, log logrus.FieldLogger) *Runner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.QuoteMaxChars <= 0 {
		opts.QuoteMaxChars = citation.DefaultQuoteMaxChars
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{extractor: ext, classifier: cls, opts: opts, log: log}
}

// FailureSummary describes one document that produced no classification.
type FailureSummary struct {
	Filename string             `json:"filename"`
	Code     citation.ErrorCode `json:"code"`
	Detail   string             `json:"detail,omitempty"`
}

// Summary reports the outcome of a run.
type Summary struct {
	Files     int              `json:"files"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Citations int              `json:"citations"`
	Rows      int              `json:"rows"`
	Output    string           `json:"output"`
	Failures  []FailureSummary `json:"failures,omitempty"`
}

// Discover lists the PDFs directly inside dir: regular files whose name ends
// in .pdf, case-insensitively, in name order.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// Run processes every PDF in dir and writes the output table. Per-document
// failures are recorded, not returned; the table is written even if every
// document failed. The returned error is non-nil only when the folder cannot
// be listed or the output cannot be written.
func (r *Runner) Run(ctx context.Context, dir string) (Summary, error) {
	files, err := Discover(dir)
	if err != nil {
		return Summary{}, err
	}

	r.log.WithFields(logrus.Fields{
		"folder":      dir,
		"files":       len(files),
		"concurrency": r.opts.MaxConcurrent,
	}).Info("batch.start")

	records := r.ProcessAll(ctx, files)
	if r.opts.SortRows {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Filename < records[j].Filename
		})
	}

	summary := Summarize(records)
	summary.Output = r.opts.Output

	if err := report.Write(r.opts.Output, records, r.opts.QuoteMaxChars); err != nil {
		return summary, err
	}

	r.log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"rows":      summary.Rows,
		"output":    summary.Output,
	}).Info("batch.done")
	return summary, nil
}

// ProcessAll runs Process for every file on at most MaxConcurrent workers
// and returns the records in completion order. Exactly one outcome line is
// logged per file.
func (r *Runner) ProcessAll(ctx context.Context, files []string) []citation.Record {
	results := make(chan citation.Record)

	var g errgroup.Group
	g.SetLimit(r.opts.MaxConcurrent)

	go func() {
		for _, path := range files {
			g.Go(func() error {
				results <- r.Process(ctx, path)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	records := make([]citation.Record, 0, len(files))
	for rec := range results {
		r.logOutcome(rec)
		records = append(records, rec)
	}
	return records
}

// Process extracts and classifies one file. It never fails: errors become a
// failure marker on the returned record.
func (r *Runner) Process(ctx context.Context, path string) citation.Record {
	name := filepath.Base(path)

	text, err := r.extractor.Extract(ctx, path)
	if err != nil {
		return citation.Failed(name, citation.ErrorExtraction, err.Error())
	}

	paper, err := r.classifier.Classify(ctx, text, r.opts.TargetTitle)
	if err != nil {
		return citation.Failed(name, citation.ErrorAPICall, err.Error())
	}

	return citation.Succeeded(name, paper)
}

func (r *Runner) logOutcome(rec citation.Record) {
	log := r.log.WithField("file", rec.Filename)
	switch {
	case !rec.OK():
		log.WithFields(logrus.Fields{
			"code":  rec.Failure.Code,
			"error": rec.Failure.Detail,
		}).Warn("processing failed")
	case rec.CitationCount() == 0:
		log.Info("no citations found")
	default:
		log.WithField("citations", rec.CitationCount()).Info("citations found")
	}
}

// Summarize counts the outcomes of records.
func Summarize(records []citation.Record) Summary {
	s := Summary{Files: len(records)}
	for _, rec := range records {
		if !rec.OK() {
			s.Failed++
			s.Failures = append(s.Failures, FailureSummary{
				Filename: rec.Filename,
				Code:     rec.Failure.Code,
				Detail:   rec.Failure.Detail,
			})
			continue
		}
		s.Succeeded++
		s.Citations += rec.CitationCount()
	}
	s.Rows = s.Citations
	return s
}
