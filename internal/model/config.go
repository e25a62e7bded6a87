package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL      = "https://api.deepseek.com"
	DefaultModel        = "deepseek-chat"
	DefaultMaxTokens    = 4096
	DefaultTemperature  = 0.7
	DefaultTimeoutSec   = 180
	DefaultMaxQuestions = 3
	DefaultMaxAttempts  = 3
	MaxRetryAttempts    = 3
	DefaultBaseDelayMs  = 500
	DefaultLogLevel     = "warn"

	// EnvPrefix is prepended to every environment override (DEEPSEEK_MODEL, ...).
	EnvPrefix = "DEEPSEEK"
)

// APIConfig holds the chat-completion endpoint settings.
type APIConfig struct {
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TimeoutSec  int     `mapstructure:"timeout" yaml:"timeout"`
}

// RetryConfig controls how transient request failures are retried.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
}

// TaskFinisherConfig holds settings for the clarification dialogue.
type TaskFinisherConfig struct {
	// MaxQuestions is the number of clarifying rounds allowed before the
	// service is told to finalize. Values above 5 are reduced to 5.
	MaxQuestions int `mapstructure:"max_questions" yaml:"max_questions"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API          APIConfig          `mapstructure:"api" yaml:"api"`
	Retry        RetryConfig        `mapstructure:"retry" yaml:"retry"`
	TaskFinisher TaskFinisherConfig `mapstructure:"taskfinisher" yaml:"taskfinisher"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`

	// APIKey is never written to the config file. It comes from the
	// environment or the system keyring.
	APIKey string `mapstructure:"api_key" yaml:"-"`
}

// Timeout returns the per-attempt request timeout.
func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// BaseDelay returns the backoff delay before the second attempt.
func (c *AppConfig) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// Validate range-checks the configuration.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("API key cannot be empty"))
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("base URL cannot be empty"))
	}
	if strings.TrimSpace(c.API.Model) == "" {
		errs = append(errs, errors.New("model cannot be empty"))
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		errs = append(errs, errors.New("temperature must be between 0.0 and 2.0"))
	}
	if c.API.MaxTokens <= 0 {
		errs = append(errs, errors.New("max tokens must be greater than 0"))
	}
	if c.API.TimeoutSec <= 0 {
		errs = append(errs, errors.New("timeout must be greater than 0"))
	}
	if c.TaskFinisher.MaxQuestions < 0 {
		errs = append(errs, errors.New("max questions cannot be negative"))
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > MaxRetryAttempts {
		errs = append(errs, fmt.Errorf("retry attempts must be between 1 and %d", MaxRetryAttempts))
	}
	if c.Retry.BaseDelayMs <= 0 {
		errs = append(errs, errors.New("retry base delay must be greater than 0"))
	}
	return errors.Join(errs...)
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/deepseek-json/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "deepseek-json", "config.yaml")
}

// DefaultAppConfig returns the built-in configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			TimeoutSec:  DefaultTimeoutSec,
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelayMs: DefaultBaseDelayMs,
		},
		TaskFinisher: TaskFinisherConfig{
			MaxQuestions: DefaultMaxQuestions,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// newViper returns a viper instance with defaults and the environment
// bindings used by both loading and tests.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.model", DefaultModel)
	v.SetDefault("api.max_tokens", DefaultMaxTokens)
	v.SetDefault("api.temperature", DefaultTemperature)
	v.SetDefault("api.timeout", DefaultTimeoutSec)
	v.SetDefault("retry.max_attempts", DefaultMaxAttempts)
	v.SetDefault("retry.base_delay_ms", DefaultBaseDelayMs)
	v.SetDefault("taskfinisher.max_questions", DefaultMaxQuestions)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("api_key", "")

	// The flat DEEPSEEK_* names predate the nested file layout.
	envBindings := map[string]string{
		"api_key":                    "API_KEY",
		"api.base_url":               "BASE_URL",
		"api.model":                  "MODEL",
		"api.max_tokens":             "MAX_TOKENS",
		"api.temperature":            "TEMPERATURE",
		"api.timeout":                "TIMEOUT",
		"taskfinisher.max_questions": "MAX_QUESTIONS",
		"log.level":                  "LOG_LEVEL",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, EnvPrefix+"_"+env)
	}

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// then applies DEEPSEEK_* environment overrides. A missing file is not an
// error; defaults and the environment still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The API key is never written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("retry", cfg.Retry)
	v.Set("taskfinisher", cfg.TaskFinisher)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
