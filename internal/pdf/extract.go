// Package pdf extracts the body text of PDF files.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrExtractionFailed is wrapped by every extraction failure. These failures
// are permanent for the file and never worth retrying.
var ErrExtractionFailed = errors.New("text extraction failed")

// ErrNotPDF is returned when the file content is not a PDF.
var ErrNotPDF = errors.New("not a PDF file")

// Strategy selects how page content is turned into text.
type Strategy string

const (
	// StrategyLayout groups positioned glyphs into lines and text boxes.
	StrategyLayout Strategy = "layout"
	// StrategyPlain concatenates each page's plain text.
	StrategyPlain Strategy = "plain"
	// StrategyChinese emits one sentence per line, split on CJK punctuation.
	StrategyChinese Strategy = "chinese"
	// StrategyMixed splits English lines on periods and other lines on CJK
	// or Latin terminators.
	StrategyMixed Strategy = "mixed"
)

// Options configures an Extractor.
type Options struct {
	Strategy Strategy
	Layout   LayoutParams
	// Validate runs structural validation before parsing.
	Validate bool
}

// Extractor turns PDF files into normalized text.
// It holds no per-file state and is safe for concurrent use.
type Extractor struct {
	opts Options
}

// New creates an Extractor. An empty strategy means StrategyLayout.
func New(opts Options) (*Extractor, error) {
	switch opts.Strategy {
	case "":
		opts.Strategy = StrategyLayout
	case StrategyLayout, StrategyPlain, StrategyChinese, StrategyMixed:
	default:
		return nil, fmt.Errorf("unknown extraction strategy: %s", opts.Strategy)
	}
	if opts.Layout == (LayoutParams{}) {
		opts.Layout = DefaultLayoutParams()
	}
	return &Extractor{opts: opts}, nil
}

// Strategy returns the configured strategy.
func (e *Extractor) Strategy() Strategy {
	return e.opts.Strategy
}

// Extract returns the normalized text of the PDF at path. Every failure,
// including a parser panic on a malformed content stream, wraps
// ErrExtractionFailed. Text that is empty after normalization is a failure.
// Cancellation of ctx is returned as ctx.Err().
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := preflight(path, e.opts.Validate); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	raw, err := e.extractRaw(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	text := Normalize(raw)
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", ErrExtractionFailed)
	}
	return text, nil
}

func (e *Extractor) extractRaw(ctx context.Context, path string) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = ""
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var builder strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		switch e.opts.Strategy {
		case StrategyPlain:
			text, err := page.GetPlainText(nil)
			if err != nil {
				continue
			}
			builder.WriteString(text)
			builder.WriteString("\n")
		case StrategyChinese:
			builder.WriteString(chineseText(layoutLines(page.Content().Text, e.opts.Layout)))
		case StrategyMixed:
			builder.WriteString(mixedText(layoutLines(page.Content().Text, e.opts.Layout)))
		default:
			builder.WriteString(layoutText(page.Content().Text, e.opts.Layout))
		}
	}

	return builder.String(), nil
}

// preflight rejects files whose content is not a PDF and, when validate is
// set, files that fail structural validation.
func preflight(path string, validate bool) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect MIME type: %w", err)
	}
	if !mtype.Is("application/pdf") {
		return fmt.Errorf("%w: detected %s", ErrNotPDF, mtype.String())
	}
	if !validate {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return fmt.Errorf("invalid PDF structure: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invalid PDF structure: no pages")
	}
	return nil
}

var (
	blankRun   = regexp.MustCompile(`[ \t\f]{2,}`)
	newlineRun = regexp.MustCompile(`\n{2,}`)
)

// Normalize collapses runs of spaces, tabs and form feeds to one space and
// runs of newlines to a single blank line, then trims the result.
func Normalize(text string) string {
	text = blankRun.ReplaceAllString(text, " ")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
