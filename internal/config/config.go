// Package config loads docflow settings: built-in defaults, overridden by a
// YAML file, overridden by DOCFLOW_* environment variables. Command-line
// flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fpang/docflow/internal/analysis"
)

// Environment variables read by Load.
const (
	EnvAPIURL         = "DOCFLOW_API_URL"
	EnvSSMTokenParam  = "DOCFLOW_SSM_TOKEN_PARAM"
	EnvFirstPollDelay = "DOCFLOW_FIRST_POLL_DELAY"
	EnvPollInterval   = "DOCFLOW_POLL_INTERVAL"
	EnvPollBudget     = "DOCFLOW_POLL_BUDGET"
	EnvHistoryFile    = "DOCFLOW_HISTORY_FILE"
	EnvMetricsFile    = "DOCFLOW_METRICS_FILE"
	EnvLogLevel       = "DOCFLOW_LOG_LEVEL"
)

const (
	dirName         = ".docflow"
	configFileName  = "config.yaml"
	historyFileName = "history.yaml"
)

// Config holds every tunable setting.
type Config struct {
	APIURL        string `yaml:"apiUrl"`
	SSMTokenParam string `yaml:"ssmTokenParam,omitempty"`

	FirstPollDelay time.Duration `yaml:"firstPollDelay"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	// PollBudget bounds analysis polling; 0 polls until a terminal status.
	PollBudget time.Duration `yaml:"pollBudget"`

	HistoryFile string `yaml:"historyFile"`
	// MetricsFile receives EMF lines when set.
	MetricsFile string `yaml:"metricsFile,omitempty"`
	LogLevel    string `yaml:"logLevel,omitempty"`
}

// Dir returns ~/.docflow, or .docflow if the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// DefaultPath returns the config file location used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), configFileName)
}

// Default returns the built-in settings.
func Default() Config {
	poll := analysis.DefaultConfig()
	return Config{
		APIURL:         "http://localhost:8000/api/",
		FirstPollDelay: poll.FirstPollDelay,
		PollInterval:   poll.PollInterval,
		PollBudget:     poll.MaxPollDuration,
		HistoryFile:    filepath.Join(Dir(), historyFileName),
		LogLevel:       "info",
	}
}

// Load builds the effective config. A missing file is not an error; the
// defaults and environment still apply.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("No config file, using defaults")
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	case info.IsDir():
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Config file loaded")
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setDuration := func(env string, dst *time.Duration) error {
		v := os.Getenv(env)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", env, v, err)
		}
		*dst = d
		return nil
	}

	setString(EnvAPIURL, &c.APIURL)
	setString(EnvSSMTokenParam, &c.SSMTokenParam)
	setString(EnvHistoryFile, &c.HistoryFile)
	setString(EnvMetricsFile, &c.MetricsFile)
	setString(EnvLogLevel, &c.LogLevel)

	return errors.Join(
		setDuration(EnvFirstPollDelay, &c.FirstPollDelay),
		setDuration(EnvPollInterval, &c.PollInterval),
		setDuration(EnvPollBudget, &c.PollBudget),
	)
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("apiUrl must be an absolute http(s) URL, got %q", c.APIURL))
	}
	if c.FirstPollDelay <= 0 {
		errs = append(errs, fmt.Errorf("firstPollDelay must be positive, got %s", c.FirstPollDelay))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive, got %s", c.PollInterval))
	}
	if c.PollBudget < 0 {
		errs = append(errs, fmt.Errorf("pollBudget must not be negative, got %s", c.PollBudget))
	}
	if c.HistoryFile == "" {
		errs = append(errs, errors.New("historyFile must be set"))
	}
	return errors.Join(errs...)
}

// Poll returns the poll schedule.
func (c Config) Poll() analysis.Config {
	return analysis.Config{
		FirstPollDelay:  c.FirstPollDelay,
		PollInterval:    c.PollInterval,
		MaxPollDuration: c.PollBudget,
	}
}

// Write saves cfg as YAML at path, creating the directory if needed.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	log.Info().Str("path", path).Msg("Config file written")
	return nil
}
