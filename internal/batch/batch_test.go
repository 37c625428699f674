package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/matsen/citelens/internal/citation"
	"github.com/matsen/citelens/internal/report"
)

// fakeExtractor returns the file content as text, or fails when the content
// starts with "corrupt".
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(string(data), "corrupt") {
		return "", errors.New("text extraction failed: malformed PDF")
	}
	return string(data), nil
}

// fakeClassifier answers from a table keyed by text. It tracks how many
// calls run at once and can delay each call.
type fakeClassifier struct {
	papers   map[string]citation.Paper
	delay    func(text string) time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeClassifier) Classify(ctx context.Context, text, targetTitle string) (citation.Paper, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(text)):
		case <-ctx.Done():
			return citation.Paper{}, ctx.Err()
		}
	}

	if targetTitle != "Target" {
		return citation.Paper{}, fmt.Errorf("unexpected target %q", targetTitle)
	}
	p, ok := f.papers[text]
	if !ok {
		return citation.Paper{}, errors.New("model API error: HTTP 500")
	}
	return p, nil
}

func writeInputs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

func outcomeLines(hook *test.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if _, ok := e.Data["file"]; ok {
			n++
		}
	}
	return n
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse output: %v", err)
	}
	return rows
}

func goodPaper(n int) citation.Paper {
	p := citation.Paper{Title: "Citing", Journal: "J", Authors: []string{"A", "B"}}
	for i := 0; i < n; i++ {
		p.Citations = append(p.Citations, citation.Citation{
			Quote:     fmt.Sprintf("quote %d", i),
			Sentiment: citation.Positive,
			Page:      fmt.Sprint(i + 1),
		})
	}
	return p
}

func TestDiscover(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"b.pdf":     "x",
		"A.PDF":     "x",
		"notes.txt": "x",
		"c.pdf.bak": "x",
	})
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	want := []string{"A.PDF", "b.pdf"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Discover() = %v, want %v", names, want)
	}
}

func TestDiscover_MissingFolder(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Discover() should fail for a missing folder")
	}
}

func TestRun_GoodAndCorrupt(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"good.pdf":    "good text",
		"corrupt.pdf": "corrupt bytes",
		"readme.md":   "ignored",
	})
	out := filepath.Join(t.TempDir(), "results.csv")
	cls := &fakeClassifier{papers: map[string]citation.Paper{"good text": goodPaper(2)}}
	log, hook := test.NewNullLogger()

	r := NewRunner(fakeExtractor{}, cls, Options{TargetTitle: "Target", Output: out, MaxConcurrent: 4}, log)
	summary, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Files != 2 || summary.Succeeded != 1 || summary.Failed != 1 || summary.Rows != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Code != citation.ErrorExtraction {
		t.Errorf("failures = %+v, want one EXTRACTION_FAILED", summary.Failures)
	}
	if n := outcomeLines(hook); n != 2 {
		t.Errorf("outcome lines = %d, want 2", n)
	}

	rows := readRows(t, out)
	if len(rows) != 3 {
		t.Fatalf("output has %d rows, want header + 2", len(rows))
	}
	for _, row := range rows[1:] {
		if row[0] != "good.pdf" {
			t.Errorf("row for %q, want good.pdf", row[0])
		}
		if row[3] != "A; B" {
			t.Errorf("authors = %q", row[3])
		}
	}
}

func TestRun_OutcomeKinds(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"cites.pdf":   "cites",
		"none.pdf":    "none",
		"apierr.pdf":  "unknown to the model",
		"corrupt.pdf": "corrupt",
	})
	cls := &fakeClassifier{papers: map[string]citation.Paper{
		"cites": goodPaper(1),
		"none":  {Title: "No refs"},
	}}
	log, hook := test.NewNullLogger()

	r := NewRunner(fakeExtractor{}, cls, Options{TargetTitle: "Target", Output: filepath.Join(t.TempDir(), "o.csv")}, log)
	summary, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	byFile := map[string]*logrus.Entry{}
	for _, e := range hook.AllEntries() {
		if f, ok := e.Data["file"].(string); ok {
			byFile[f] = e
		}
	}
	if len(byFile) != 4 {
		t.Fatalf("outcome lines for %d files, want 4", len(byFile))
	}
	if e := byFile["cites.pdf"]; e.Message != "citations found" || e.Data["citations"] != 1 {
		t.Errorf("cites.pdf outcome = %q %v", e.Message, e.Data)
	}
	if e := byFile["none.pdf"]; e.Message != "no citations found" {
		t.Errorf("none.pdf outcome = %q", e.Message)
	}
	if e := byFile["apierr.pdf"]; e.Level != logrus.WarnLevel || e.Data["code"] != citation.ErrorAPICall {
		t.Errorf("apierr.pdf outcome = %v %v", e.Level, e.Data)
	}
	if e := byFile["corrupt.pdf"]; e.Data["code"] != citation.ErrorExtraction {
		t.Errorf("corrupt.pdf outcome = %v", e.Data)
	}
	if summary.Succeeded != 2 || summary.Failed != 2 || summary.Citations != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_AllFailedStillWrites(t *testing.T) {
	dir := writeInputs(t, map[string]string{"a.pdf": "corrupt", "b.pdf": "corrupt"})
	out := filepath.Join(t.TempDir(), "results.csv")
	log, _ := test.NewNullLogger()

	r := NewRunner(fakeExtractor{}, &fakeClassifier{}, Options{TargetTitle: "Target", Output: out}, log)
	summary, err := r.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Failed != 2 {
		t.Errorf("Failed = %d, want 2", summary.Failed)
	}
	if rows := readRows(t, out); len(rows) != 1 {
		t.Errorf("output has %d rows, want header only", len(rows))
	}
}

func TestRun_EmptyFolder(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results.csv")
	log, hook := test.NewNullLogger()

	r := NewRunner(fakeExtractor{}, &fakeClassifier{}, Options{TargetTitle: "Target", Output: out}, log)
	summary, err := r.Run(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Files != 0 || outcomeLines(hook) != 0 {
		t.Errorf("summary = %+v, outcome lines = %d", summary, outcomeLines(hook))
	}
	if rows := readRows(t, out); len(rows) != 1 {
		t.Errorf("output has %d rows, want header only", len(rows))
	}
}

func TestRun_WriteError(t *testing.T) {
	dir := writeInputs(t, map[string]string{"a.pdf": "corrupt"})
	out := filepath.Join(t.TempDir(), "missing", "results.csv")
	log, _ := test.NewNullLogger()

	r := NewRunner(fakeExtractor{}, &fakeClassifier{}, Options{TargetTitle: "Target", Output: out}, log)
	if _, err := r.Run(context.Background(), dir); !errors.Is(err, report.ErrWrite) {
		t.Errorf("Run() error = %v, want report.ErrWrite", err)
	}
}

func TestProcessAll_BoundedConcurrency(t *testing.T) {
	files := map[string]string{}
	papers := map[string]citation.Paper{}
	for i := 0; i < 10; i++ {
		text := fmt.Sprintf("text %d", i)
		files[fmt.Sprintf("p%02d.pdf", i)] = text
		papers[text] = goodPaper(1)
	}
	dir := writeInputs(t, files)
	paths, err := Discover(dir)
	if err != nil {
		t.Fatal(err)
	}

	cls := &fakeClassifier{
		papers: papers,
		delay:  func(string) time.Duration { return 20 * time.Millisecond },
	}
	log, hook := test.NewNullLogger()

	r := NewRunner(fakeExtractor{}, cls, Options{TargetTitle: "Target", MaxConcurrent: 3}, log)
	records := r.ProcessAll(context.Background(), paths)

	if len(records) != 10 {
		t.Errorf("records = %d, want 10", len(records))
	}
	if n := outcomeLines(hook); n != 10 {
		t.Errorf("outcome lines = %d, want 10", n)
	}
	if m := cls.maxSeen.Load(); m > 3 {
		t.Errorf("max concurrent classifications = %d, want <= 3", m)
	}
}

func TestRun_SortedOutputIsDeterministic(t *testing.T) {
	files := map[string]string{}
	papers := map[string]citation.Paper{}
	for i := 0; i < 6; i++ {
		text := fmt.Sprintf("text %d", i)
		files[fmt.Sprintf("p%d.pdf", i)] = text
		papers[text] = goodPaper(i % 3)
	}
	dir := writeInputs(t, files)

	var mu sync.Mutex
	calls := 0
	// Later files finish first on the first run and last on the second.
	delay := func(text string) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		calls++
		var i int
		fmt.Sscanf(text, "text %d", &i)
		if calls <= 6 {
			return time.Duration(6-i) * 5 * time.Millisecond
		}
		return time.Duration(i) * 5 * time.Millisecond
	}

	outDir := t.TempDir()
	var outputs [][]byte
	for run := 0; run < 2; run++ {
		out := filepath.Join(outDir, fmt.Sprintf("run%d.csv", run))
		log, _ := test.NewNullLogger()
		cls := &fakeClassifier{papers: papers, delay: delay}
		r := NewRunner(fakeExtractor{}, cls, Options{TargetTitle: "Target", Output: out, SortRows: true, MaxConcurrent: 6}, log)
		if _, err := r.Run(context.Background(), dir); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Errorf("sorted runs differ:\n%s\n---\n%s", outputs[0], outputs[1])
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := writeInputs(t, map[string]string{"a.pdf": "a", "b.pdf": "b"})
	out := filepath.Join(t.TempDir(), "results.csv")
	cls := &fakeClassifier{
		papers: map[string]citation.Paper{"a": goodPaper(1), "b": goodPaper(1)},
		delay:  func(string) time.Duration { return time.Hour },
	}
	log, hook := test.NewNullLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := NewRunner(fakeExtractor{}, cls, Options{TargetTitle: "Target", Output: out}, log)
	summary, err := r.Run(ctx, dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Failed != 2 {
		t.Errorf("Failed = %d, want 2", summary.Failed)
	}
	for _, f := range summary.Failures {
		if f.Code != citation.ErrorAPICall {
			t.Errorf("%s code = %s, want API_CALL_FAILED", f.Filename, f.Code)
		}
	}
	if n := outcomeLines(hook); n != 2 {
		t.Errorf("outcome lines = %d, want 2", n)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written after cancellation: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	records := []citation.Record{
		citation.Succeeded("a.pdf", goodPaper(3)),
		citation.Succeeded("b.pdf", goodPaper(0)),
		citation.Failed("c.pdf", citation.ErrorAPICall, "HTTP 401"),
	}
	s := Summarize(records)
	if s.Files != 3 || s.Succeeded != 2 || s.Failed != 1 || s.Citations != 3 || s.Rows != 3 {
		t.Errorf("Summarize() = %+v", s)
	}
}
