package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// LocalConfigFile is looked up in the working directory.
	LocalConfigFile = "citelens.yml"
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "citelens"
	// GlobalConfigFile is the config file name inside GlobalConfigDir.
	GlobalConfigFile = "config.yml"
)

// Environment variables that override file settings.
const (
	EnvAPIKey        = "CITELENS_API_KEY"
	EnvEndpoint      = "CITELENS_ENDPOINT"
	EnvModel         = "CITELENS_MODEL"
	EnvTargetTitle   = "CITELENS_TARGET_TITLE"
	EnvInputDir      = "CITELENS_INPUT_DIR"
	EnvOutput        = "CITELENS_OUTPUT"
	EnvMaxConcurrent = "CITELENS_MAX_CONCURRENT"
)

// GlobalConfigPath returns the path to the per-user config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/citelens/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// Resolve picks the config file to read. An explicit path must exist; without
// one, citelens.yml in the working directory and then the global config file
// are tried. An empty result means no file, which is not an error.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		path := ExpandPath(explicit)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	for _, candidate := range []string{LocalConfigFile, GlobalConfigPath()} {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then a .env file in the working directory, then environment
// variables. Validation is left to the caller so flags can be applied first.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	// Load .env if present (for CITELENS_API_KEY). Existing variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	cfg.InputDir = ExpandPath(cfg.InputDir)
	cfg.Output = ExpandPath(cfg.Output)
	cfg.PromptTemplate = ExpandPath(cfg.PromptTemplate)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvAPIKey, &c.API.Key},
		{EnvEndpoint, &c.API.Endpoint},
		{EnvModel, &c.API.Model},
		{EnvTargetTitle, &c.TargetTitle},
		{EnvInputDir, &c.InputDir},
		{EnvOutput, &c.Output},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup(EnvMaxConcurrent); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvMaxConcurrent, v)
		}
		c.MaxConcurrent = n
	}
	return nil
}
