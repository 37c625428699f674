// Package report writes classification records as an output table.
package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/matsen/citelens/internal/citation"
)

// ErrWrite is wrapped by every failure to produce the output file.
var ErrWrite = errors.New("writing output table")

// Format is an output table format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	// CitationsSheet holds the citation rows in XLSX output.
	CitationsSheet = "citations"
	// FailuresSheet lists documents that produced no classification.
	FailuresSheet = "failures"
)

// FailureHeader is the column layout of the failures sheet.
var FailureHeader = []string{"filename", "error", "detail"}

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported output format: %q", filepath.Ext(path))
	}
}

// Rows returns the header followed by one row per citation of every
// successful record, in record order.
func Rows(records []citation.Record, quoteMax int) [][]string {
	rows := [][]string{citation.Header}
	for _, r := range records {
		rows = append(rows, r.Rows(quoteMax)...)
	}
	return rows
}

// Encode renders the records in the given format.
func Encode(format Format, records []citation.Record, quoteMax int) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(records, quoteMax)
	case FormatXLSX:
		return encodeXLSX(records, quoteMax)
	default:
		return nil, fmt.Errorf("unsupported output format: %q", format)
	}
}

// Write renders the records in the format implied by path and replaces the
// file atomically. The header is written even when no record succeeded.
func Write(path string, records []citation.Record, quoteMax int) error {
	format, err := FormatFor(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	data, err := Encode(format, records, quoteMax)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func encodeCSV(records []citation.Record, quoteMax int) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(Rows(records, quoteMax)); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeXLSX(records []citation.Record, quoteMax int) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(CitationsSheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	index, err := f.GetSheetIndex(CitationsSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	if err := writeSheet(f, CitationsSheet, Rows(records, quoteMax)); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(CitationsSheet, "A", "A", 24) // filename
	_ = f.SetColWidth(CitationsSheet, "B", "D", 32) // title, journal, authors
	_ = f.SetColWidth(CitationsSheet, "E", "E", 60) // quote

	failures := [][]string{FailureHeader}
	for _, r := range records {
		if r.Failure != nil {
			failures = append(failures, []string{r.Filename, string(r.Failure.Code), r.Failure.Detail})
		}
	}
	if len(failures) > 1 {
		if _, err := f.NewSheet(FailuresSheet); err != nil {
			return nil, err
		}
		if err := writeSheet(f, FailuresSheet, failures); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]string) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeAtomic writes data to a temp file next to path and renames it into
// place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-citelens-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
