package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/matsen/citelens/internal/citation"
)

// responseSchemaJSON describes the completion content. Every field is
// optional; missing fields default to empty values.
const responseSchemaJSON = `{
  "type": "object",
  "properties": {
    "title":   {"type": "string"},
    "journal": {"type": "string"},
    "authors": {"type": "array", "items": {"type": "string"}},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "quote":     {"type": "string"},
          "sentiment": {"type": "string"},
          "page":      {"type": "string"}
        }
      }
    }
  }
}`

var responseSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", strings.NewReader(responseSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("response.json")
})

type responsePaper struct {
	Title     string             `json:"title"`
	Journal   string             `json:"journal"`
	Authors   []string           `json:"authors"`
	Citations []responseCitation `json:"citations"`
}

type responseCitation struct {
	Quote     string `json:"quote"`
	Sentiment string `json:"sentiment"`
	Page      string `json:"page"`
}

// DecodePaper parses completion content into a Paper. Markdown code fences
// and a leading reasoning block are tolerated; numeric page values become
// strings. Sentiment labels that cannot be normalized are returned in
// unknown and mapped to neutral.
func DecodePaper(content string) (paper citation.Paper, unknown []string, err error) {
	raw := extractJSON(content)

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return citation.Paper{}, nil, fmt.Errorf("%w: content is not JSON: %v", ErrInvalidResponse, err)
	}
	v = coerce(v)

	schema, err := responseSchema()
	if err != nil {
		return citation.Paper{}, nil, err
	}
	if err := schema.Validate(v); err != nil {
		return citation.Paper{}, nil, fmt.Errorf("%w: schema validation failed: %v", ErrInvalidResponse, err)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return citation.Paper{}, nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var r responsePaper
	if err := json.Unmarshal(b, &r); err != nil {
		return citation.Paper{}, nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	paper = citation.Paper{
		Title:     strings.TrimSpace(r.Title),
		Journal:   strings.TrimSpace(r.Journal),
		Authors:   r.Authors,
		Citations: make([]citation.Citation, 0, len(r.Citations)),
	}
	if paper.Authors == nil {
		paper.Authors = []string{}
	}
	for _, c := range r.Citations {
		s, ok := citation.ParseSentiment(c.Sentiment)
		if !ok {
			unknown = append(unknown, c.Sentiment)
		}
		paper.Citations = append(paper.Citations, citation.Citation{
			Quote:     strings.TrimSpace(c.Quote),
			Sentiment: s,
			Page:      strings.TrimSpace(c.Page),
		})
	}
	return paper, unknown, nil
}

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// extractJSON strips a reasoning preamble from model output. Content that is
// not JSON by itself yields the first markdown code block, so prose around
// the block is ignored.
func extractJSON(content string) string {
	text := strings.TrimSpace(content)
	if i := strings.LastIndex(text, "</think>"); i >= 0 {
		text = strings.TrimSpace(text[i+len("</think>"):])
	}
	if json.Valid([]byte(text)) {
		return text
	}
	if m := jsonBlockRegex.FindStringSubmatch(text); len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return text
}

// coerce repairs common deviations before validation: null fields are
// dropped, numeric pages become strings and a single author string becomes a
// one-element list.
func coerce(v any) any {
	root, ok := v.(map[string]any)
	if !ok {
		return v
	}
	dropNulls(root)

	if s, ok := root["authors"].(string); ok {
		root["authors"] = []any{s}
	}

	if cites, ok := root["citations"].([]any); ok {
		for _, item := range cites {
			c, ok := item.(map[string]any)
			if !ok {
				continue
			}
			dropNulls(c)
			if n, ok := c["page"].(float64); ok {
				c["page"] = strconv.FormatFloat(n, 'f', -1, 64)
			}
		}
	}
	return root
}

func dropNulls(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
}
