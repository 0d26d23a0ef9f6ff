// Package config loads supportmesh settings from the environment.
//
// An optional .env file is read with viper and exported into the process
// environment; the values are then decoded with envconfig using the
// SUPPORTMESH prefix. Provider API keys are also accepted without prefix
// (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Prefix is the environment variable prefix.
const Prefix = "SUPPORTMESH"

// Provider names.
const (
	ProviderOffline   = "offline"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrMissingAPIKey is returned when a network provider has no API key.
var ErrMissingAPIKey = errors.New("missing api key")

// Config is the process configuration.
type Config struct {
	Provider string `default:"offline" desc:"offline, gemini, openai or anthropic"`
	Model    string `desc:"provider model id; empty selects the provider default"`

	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`

	MaxGuardrailRetries int  `split_words:"true" default:"2"`
	MaxSteps            int  `split_words:"true" default:"8"`
	MaxParallelActions  int  `split_words:"true" default:"4"`
	StreamChunks        bool `split_words:"true" default:"false"`

	LogLevel  string `split_words:"true" default:"warn"`
	LogPretty bool   `split_words:"true" default:"true"`
}

// Load exports envFile (or ./.env when envFile is empty and the file exists)
// into the environment and decodes the configuration.
func Load(envFile string) (*Config, error) {
	envFile = strings.TrimSpace(envFile)

	if envFile != "" {
		if err := exportEnvironment(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := exportEnvironmentIfExists(".env"); err != nil {
		return nil, fmt.Errorf("failed to load default env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the provider and its credentials.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOffline:
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		if c.APIKey() == "" {
			return fmt.Errorf("%w for provider %s", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	if c.MaxSteps < 1 {
		return fmt.Errorf("max steps must be positive, got %d", c.MaxSteps)
	}

	if c.MaxGuardrailRetries < 0 {
		return fmt.Errorf("max guardrail retries must not be negative, got %d", c.MaxGuardrailRetries)
	}

	return nil
}

// APIKey returns the key of the selected provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

// Usage writes the recognised environment variables to stdout.
func Usage() error {
	var cfg Config
	return envconfig.Usage(Prefix, &cfg)
}

func exportEnvironmentIfExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(path)
}

// exportEnvironment sets every key of the dotenv file that is not already
// present in the environment.
func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}

	return nil
}
