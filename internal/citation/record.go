package citation

import (
	"strings"
	"unicode/utf8"
)

// ErrorCode identifies why a paper produced no classification.
type ErrorCode string

const (
	ErrorExtraction ErrorCode = "EXTRACTION_FAILED"
	ErrorAPICall    ErrorCode = "API_CALL_FAILED"
)

// DefaultQuoteMaxChars is the quote length kept in output rows.
const DefaultQuoteMaxChars = 200

// Ellipsis marks a truncated quote.
const Ellipsis = "..."

// Failure records why a source document could not be classified.
type Failure struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail,omitempty"`
}

// Record is the outcome for one source document. Exactly one of Paper and
// Failure is set.
type Record struct {
	Filename string   `json:"filename"`
	Paper    *Paper   `json:"paper,omitempty"`
	Failure  *Failure `json:"error,omitempty"`
}

// Succeeded builds a record for a classified paper. A nil citation list is
// replaced with an empty one.
func Succeeded(filename string, p Paper) Record {
	if p.Citations == nil {
		p.Citations = []Citation{}
	}
	if p.Authors == nil {
		p.Authors = []string{}
	}
	return Record{Filename: filename, Paper: &p}
}

// Failed builds a record carrying a failure marker.
func Failed(filename string, code ErrorCode, detail string) Record {
	return Record{Filename: filename, Failure: &Failure{Code: code, Detail: detail}}
}

// OK reports whether the record carries a classification.
func (r Record) OK() bool {
	return r.Failure == nil && r.Paper != nil
}

// CitationCount returns the number of citations found, zero for failures.
func (r Record) CitationCount() int {
	if !r.OK() {
		return 0
	}
	return len(r.Paper.Citations)
}

// Header is the column layout of the output table.
var Header = []string{"filename", "citing title", "journal", "authors", "quote", "sentiment", "page"}

// Rows flattens the record into one row per citation. Failed records
// produce no rows.
func (r Record) Rows(quoteMax int) [][]string {
	if !r.OK() {
		return nil
	}
	authors := strings.Join(r.Paper.Authors, "; ")
	rows := make([][]string, 0, len(r.Paper.Citations))
	for _, c := range r.Paper.Citations {
		rows = append(rows, []string{
			r.Filename,
			r.Paper.Title,
			r.Paper.Journal,
			authors,
			TruncateQuote(c.Quote, quoteMax),
			string(c.Sentiment),
			c.Page,
		})
	}
	return rows
}

// TruncateQuote keeps the first max characters of quote and appends an
// ellipsis when anything was cut. Characters are counted as runes.
func TruncateQuote(quote string, max int) string {
	if max <= 0 {
		max = DefaultQuoteMaxChars
	}
	if utf8.RuneCountInString(quote) <= max {
		return quote
	}
	n := 0
	for i := range quote {
		if n == max {
			return quote[:i] + Ellipsis
		}
		n++
	}
	return quote
}
