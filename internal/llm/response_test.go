package llm

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matsen/citelens/internal/citation"
)

func TestDecodePaper(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantTitle   string
		wantAuthors []string
		wantCites   []citation.Citation
		wantUnknown []string
	}{
		{
			name:        "plain object",
			content:     `{"title":"T","journal":"J","authors":["A"],"citations":[{"quote":"q","sentiment":"negative","page":"7"}]}`,
			wantTitle:   "T",
			wantAuthors: []string{"A"},
			wantCites:   []citation.Citation{{Quote: "q", Sentiment: citation.Negative, Page: "7"}},
		},
		{
			name:        "markdown fence",
			content:     "```json\n{\"title\":\"Fenced\",\"citations\":[]}\n```",
			wantTitle:   "Fenced",
			wantAuthors: []string{},
			wantCites:   []citation.Citation{},
		},
		{
			name:        "fence followed by prose",
			content:     "```json\n{\"title\":\"Trailing\"}\n```\nHope this helps.",
			wantTitle:   "Trailing",
			wantAuthors: []string{},
			wantCites:   []citation.Citation{},
		},
		{
			name:        "prose around bare fence",
			content:     "Here is the result:\n```\n{\"title\":\"Bare\",\"citations\":[]}\n```\nLet me know if you need more.",
			wantTitle:   "Bare",
			wantAuthors: []string{},
			wantCites:   []citation.Citation{},
		},
		{
			name:        "reasoning preamble",
			content:     "<think>the paper mentions it twice</think>\n{\"title\":\"Reasoned\"}",
			wantTitle:   "Reasoned",
			wantAuthors: []string{},
			wantCites:   []citation.Citation{},
		},
		{
			name:        "numeric page and chinese label",
			content:     `{"citations":[{"quote":"引文","sentiment":"✅正面","page":12}]}`,
			wantAuthors: []string{},
			wantCites:   []citation.Citation{{Quote: "引文", Sentiment: citation.Positive, Page: "12"}},
		},
		{
			name:        "nulls and single author",
			content:     `{"title":null,"journal":"J","authors":"Wang, L.","citations":[{"quote":"q","sentiment":null,"page":null}]}`,
			wantAuthors: []string{"Wang, L."},
			wantCites:   []citation.Citation{{Quote: "q", Sentiment: citation.Neutral}},
			wantUnknown: []string{""},
		},
		{
			name:        "unknown sentiment",
			content:     `{"citations":[{"quote":"q","sentiment":"lukewarm","page":"1"}]}`,
			wantAuthors: []string{},
			wantCites:   []citation.Citation{{Quote: "q", Sentiment: citation.Neutral, Page: "1"}},
			wantUnknown: []string{"lukewarm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paper, unknown, err := DecodePaper(tt.content)
			if err != nil {
				t.Fatalf("DecodePaper() error = %v", err)
			}
			if paper.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", paper.Title, tt.wantTitle)
			}
			if !reflect.DeepEqual(paper.Authors, tt.wantAuthors) {
				t.Errorf("Authors = %#v, want %#v", paper.Authors, tt.wantAuthors)
			}
			if !reflect.DeepEqual(paper.Citations, tt.wantCites) {
				t.Errorf("Citations = %#v, want %#v", paper.Citations, tt.wantCites)
			}
			if !reflect.DeepEqual(unknown, tt.wantUnknown) {
				t.Errorf("unknown = %#v, want %#v", unknown, tt.wantUnknown)
			}
		})
	}
}

func TestDecodePaper_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose", "There are no citations of the target paper."},
		{"truncated", `{"title":"T","citations":[{"quote":`},
		{"array root", `[1,2,3]`},
		{"authors not strings", `{"authors":[1,2]}`},
		{"citation not object", `{"citations":["a quote"]}`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodePaper(tt.content)
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("DecodePaper(%q) error = %v, want ErrInvalidResponse", tt.content, err)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"引用分析", 2, "引用"},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	got, err := BuildPrompt(DefaultPromptTemplate(), "Attention Is All You Need", "body text here", 30000)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	for _, want := range []string{`"Attention Is All You Need"`, "first 30000 characters", "body text here", `"citations"`} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLoadPromptTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.tmpl")
	if err := os.WriteFile(path, []byte("Find {{.TargetTitle}} in: {{.Text}}"), 0644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := LoadPromptTemplate(path)
	if err != nil {
		t.Fatalf("LoadPromptTemplate() error = %v", err)
	}
	got, err := BuildPrompt(tmpl, "X", "abcdef", 3)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if got != "Find X in: abc" {
		t.Errorf("BuildPrompt() = %q", got)
	}

	bad := filepath.Join(dir, "bad.tmpl")
	if err := os.WriteFile(bad, []byte("{{.TargetTitle"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPromptTemplate(bad); err == nil {
		t.Error("LoadPromptTemplate() should fail for a malformed template")
	}
	if _, err := LoadPromptTemplate(filepath.Join(dir, "missing.tmpl")); err == nil {
		t.Error("LoadPromptTemplate() should fail for a missing file")
	}
}
