package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matsen/citelens/internal/batch"
	"github.com/matsen/citelens/internal/config"
	"github.com/matsen/citelens/internal/llm"
	"github.com/matsen/citelens/internal/pdf"
	"github.com/matsen/citelens/internal/retry"
)

// Flag names shared by several commands.
const (
	flagOutput      = "output"
	flagTarget      = "target"
	flagConcurrency = "concurrency"
	flagStrategy    = "strategy"
	flagSort        = "sort"
)

// mustLoadConfig resolves and loads the configuration, then applies any flags
// the user set on cmd. Exits on error.
func mustLoadConfig(cmd *cobra.Command) config.Config {
	path, err := config.Resolve(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	if path != "" {
		logger.WithField("path", path).Debug("config loaded")
	}
	return cfg
}

// applyFlags overrides cfg with every flag explicitly set on cmd.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed(flagOutput) {
		v, err := flags.GetString(flagOutput)
		if err != nil {
			return err
		}
		cfg.Output = config.ExpandPath(v)
	}
	if flags.Changed(flagTarget) {
		v, err := flags.GetString(flagTarget)
		if err != nil {
			return err
		}
		cfg.TargetTitle = v
	}
	if flags.Changed(flagConcurrency) {
		v, err := flags.GetInt(flagConcurrency)
		if err != nil {
			return err
		}
		cfg.MaxConcurrent = v
	}
	if flags.Changed(flagStrategy) {
		v, err := flags.GetString(flagStrategy)
		if err != nil {
			return err
		}
		cfg.Extract.Strategy = v
	}
	if flags.Changed(flagSort) {
		v, err := flags.GetBool(flagSort)
		if err != nil {
			return err
		}
		cfg.SortRows = v
	}
	return nil
}

// mustValidate exits with ExitConfigError if cfg cannot drive a run.
func mustValidate(cfg config.Config) {
	if err := cfg.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
}

// extractorOptions maps the extraction settings onto pdf.Options.
func extractorOptions(cfg config.Config) pdf.Options {
	return pdf.Options{
		Strategy: pdf.Strategy(cfg.Extract.Strategy),
		Layout: pdf.LayoutParams{
			CharMargin:  cfg.Extract.CharMargin,
			LineOverlap: cfg.Extract.LineOverlap,
			WordMargin:  cfg.Extract.WordMargin,
			LineMargin:  cfg.Extract.LineMargin,
		},
		Validate: cfg.Extract.Validate,
	}
}

func mustNewExtractor(cfg config.Config) *pdf.Extractor {
	ext, err := pdf.New(extractorOptions(cfg))
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return ext
}

// classifierOptions maps the API, retry and prompt settings onto client options.
func classifierOptions(cfg config.Config) ([]llm.ClientOption, error) {
	opts := []llm.ClientOption{
		llm.WithAPIKey(cfg.API.Key),
		llm.WithEndpoint(cfg.API.Endpoint),
		llm.WithModel(cfg.API.Model),
		llm.WithSampling(cfg.API.Temperature, cfg.API.MaxTokens),
		llm.WithTimeout(cfg.API.Timeout),
		llm.WithRateLimit(cfg.API.RequestsPerSecond),
		llm.WithRetryPolicy(retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
		}),
		llm.WithMaxTextChars(cfg.MaxTextChars),
		llm.WithLogger(logger),
	}

	if cfg.PromptTemplate != "" {
		tmpl, err := llm.LoadPromptTemplate(cfg.PromptTemplate)
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithPromptTemplate(tmpl))
	}
	return opts, nil
}

func mustNewClassifier(cfg config.Config) *llm.Client {
	opts, err := classifierOptions(cfg)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return llm.NewClient(opts...)
}

// newRunner wires the extractor and classifier into a batch runner.
func newRunner(cfg config.Config, ext batch.Extractor, cls batch.Classifier) *batch.Runner {
	return batch.NewRunner(ext, cls, batch.Options{
		TargetTitle:   cfg.TargetTitle,
		MaxConcurrent: cfg.MaxConcurrent,
		Output:        cfg.Output,
		QuoteMaxChars: cfg.QuoteMaxChars,
		SortRows:      cfg.SortRows,
	}, logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// isInterrupted reports whether err came from a cancelled run.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
