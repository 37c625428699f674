package llm

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"unicode/utf8"
)

// PromptData is the input to the prompt template.
type PromptData struct {
	TargetTitle string
	MaxChars    int
	Text        string
}

const defaultPrompt = `Analyze the following academic paper strictly. The input is the full text of one PDF.

## Task
1. Find every passage in the body of the paper that cites and evaluates the reference "{{.TargetTitle}}", and judge each evaluation as positive, neutral or negative.
2. Extract the title and the journal name of this (citing) paper.
3. Extract all author names in standard form (e.g. "Zhang et al." or "Li, Y."). Keep Chinese names in Chinese.

## Output
Return one JSON object and nothing else:
{
  "title": "title of the citing paper",
  "journal": "journal name",
  "authors": ["author 1", "author 2"],
  "citations": [
    {
      "quote": "original sentence evaluating \"{{.TargetTitle}}\"",
      "sentiment": "positive | neutral | negative",
      "page": "page number"
    }
  ]
}

## Rules
- Ignore text that does not cite the reference.
- Return an empty citations list when there is no relevant citation.
- Keep the JSON structure complete.

--- PDF content (first {{.MaxChars}} characters) ---
{{.Text}}`

// DefaultPromptTemplate returns the built-in prompt.
func DefaultPromptTemplate() *template.Template {
	return template.Must(template.New("prompt").Parse(defaultPrompt))
}

// LoadPromptTemplate parses a prompt template from a file. The template
// receives a PromptData.
func LoadPromptTemplate(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt template: %w", err)
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template %s: %w", path, err)
	}
	return tmpl, nil
}

// BuildPrompt renders tmpl for targetTitle over the first maxChars
// characters of text. maxChars <= 0 disables truncation.
func BuildPrompt(tmpl *template.Template, targetTitle, text string, maxChars int) (string, error) {
	var b strings.Builder
	err := tmpl.Execute(&b, PromptData{
		TargetTitle: targetTitle,
		MaxChars:    maxChars,
		Text:        truncateRunes(text, maxChars),
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return b.String(), nil
}

// truncateRunes keeps the first n characters of s.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
