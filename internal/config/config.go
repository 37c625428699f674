// Package config holds the settings of a citelens run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the complete, static configuration of one run. It is built once
// before the run starts and never mutated afterwards.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Retry   RetryConfig   `yaml:"retry"`
	Extract ExtractConfig `yaml:"extract"`

	InputDir      string `yaml:"input_dir"`      // Folder scanned for PDFs (non-recursive)
	Output        string `yaml:"output"`         // .csv or .xlsx
	MaxConcurrent int    `yaml:"max_concurrent"` // Worker pool size
	TargetTitle   string `yaml:"target_title"`   // Title of the cited publication

	MaxTextChars   int    `yaml:"max_text_chars"`            // Prompt text truncation
	QuoteMaxChars  int    `yaml:"quote_max_chars"`           // Output quote truncation
	PromptTemplate string `yaml:"prompt_template,omitempty"` // Optional text/template file
	SortRows       bool   `yaml:"sort_rows"`                 // Order rows by filename
}

// APIConfig describes the chat completion endpoint.
type APIConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Key               string        `yaml:"key,omitempty"`
	Model             string        `yaml:"model"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables the limiter
}

// RetryConfig is the backoff policy for transient API failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// ExtractConfig selects the text extraction strategy and its layout thresholds.
type ExtractConfig struct {
	Strategy    string  `yaml:"strategy"`
	CharMargin  float64 `yaml:"char_margin"`
	LineOverlap float64 `yaml:"line_overlap"`
	WordMargin  float64 `yaml:"word_margin"`
	LineMargin  float64 `yaml:"line_margin"`
	Validate    bool    `yaml:"validate"` // Structural PDF validation before parsing
}

const (
	DefaultEndpoint      = "https://api.siliconflow.cn/v1/chat/completions"
	DefaultModel         = "deepseek-ai/DeepSeek-R1-Distill-Qwen-32B"
	DefaultTemperature   = 0.3
	DefaultMaxTokens     = 2000
	DefaultTimeout       = 60 * time.Second
	DefaultInputDir      = "./papers"
	DefaultOutput        = "results.csv"
	DefaultMaxConcurrent = 4
	DefaultMaxTextChars  = 30000
	DefaultQuoteMaxChars = 200
)

// Extraction strategies.
const (
	StrategyLayout  = "layout"
	StrategyPlain   = "plain"
	StrategyChinese = "chinese"
	StrategyMixed   = "mixed"
)

// ValidStrategies lists the supported extraction strategies.
var ValidStrategies = []string{StrategyLayout, StrategyPlain, StrategyChinese, StrategyMixed}

// ValidOutputExts lists the supported output table formats.
var ValidOutputExts = []string{".csv", ".xlsx"}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		API: APIConfig{
			Endpoint:    DefaultEndpoint,
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Timeout:     DefaultTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			Multiplier:  2,
		},
		Extract: ExtractConfig{
			Strategy:    StrategyLayout,
			CharMargin:  1.5,
			LineOverlap: 0.7,
			WordMargin:  0.1,
			LineMargin:  0.5,
		},
		InputDir:      DefaultInputDir,
		Output:        DefaultOutput,
		MaxConcurrent: DefaultMaxConcurrent,
		MaxTextChars:  DefaultMaxTextChars,
		QuoteMaxChars: DefaultQuoteMaxChars,
	}
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.TargetTitle) == "" {
		problems = append(problems, "target_title is required")
	}
	if strings.TrimSpace(c.API.Key) == "" {
		problems = append(problems, "api key is required (api.key or CITELENS_API_KEY)")
	}
	if c.API.Endpoint == "" {
		problems = append(problems, "api.endpoint is required")
	} else if !strings.HasPrefix(c.API.Endpoint, "http://") && !strings.HasPrefix(c.API.Endpoint, "https://") {
		problems = append(problems, fmt.Sprintf("api.endpoint must be an http(s) URL: %s", c.API.Endpoint))
	}
	if c.MaxConcurrent <= 0 {
		problems = append(problems, "max_concurrent must be positive")
	}
	if c.API.Timeout <= 0 {
		problems = append(problems, "api.timeout must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 {
		problems = append(problems, "retry.base_delay must be positive")
	}
	if c.MaxTextChars <= 0 {
		problems = append(problems, "max_text_chars must be positive")
	}
	if c.InputDir == "" {
		problems = append(problems, "input_dir is required")
	}
	if err := ValidateStrategy(c.Extract.Strategy); err != nil {
		problems = append(problems, err.Error())
	}
	if err := ValidateOutput(c.Output); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateStrategy checks that the extraction strategy is known.
func ValidateStrategy(strategy string) error {
	for _, valid := range ValidStrategies {
		if strategy == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid extract.strategy: %s (valid: %v)", strategy, ValidStrategies)
}

// ValidateOutput checks that the output path has a supported extension.
func ValidateOutput(path string) error {
	if path == "" {
		return fmt.Errorf("output is required")
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range ValidOutputExts {
		if ext == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid output extension %q (valid: %v)", ext, ValidOutputExts)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.API.Key != "" {
		c.API.Key = "****"
	}
	return c
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
