// Package config loads settings from TICKD_-prefixed environment
// variables, optionally seeded from a .env file via godotenv in the
// command entrypoints.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tickd-io/tickd/internal/backend"
)

// ProviderKind selects the language model backend.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
)

// Config holds everything the daemon and the agent shell need.
type Config struct {
	// Ticket service.
	Host   string
	Port   int
	APIKey string
	DBPath string

	// Agent shell.
	Provider        ProviderKind
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	Model           string
	BackendBaseURL  string
}

// FromEnv reads configuration from the environment. It does not validate;
// callers validate the slice of the config they actually use.
func FromEnv() *Config {
	cfg := &Config{
		Host:            envOr("TICKD_HOST", "0.0.0.0"),
		Port:            envInt("TICKD_PORT", 8080),
		APIKey:          os.Getenv("TICKD_API_KEY"),
		DBPath:          envOr("TICKD_DB", "tickd.db"),
		Provider:        ProviderKind(strings.ToLower(os.Getenv("TICKD_PROVIDER"))),
		OpenAIAPIKey:    os.Getenv("TICKD_OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("TICKD_OPENAI_BASE_URL"),
		AnthropicAPIKey: os.Getenv("TICKD_ANTHROPIC_API_KEY"),
		Model:           os.Getenv("TICKD_MODEL"),
		BackendBaseURL:  envOr("TICKD_API_BASE_URL", backend.DefaultBaseURL),
	}
	return cfg
}

// ValidateServer checks the settings the ticket daemon needs.
func (c *Config) ValidateServer() error {
	var errs []string
	if c.APIKey == "" {
		errs = append(errs, "TICKD_API_KEY is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("TICKD_PORT %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, "TICKD_DB must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateAgent checks the settings the agent shell needs and resolves
// which provider to use. With TICKD_PROVIDER unset, exactly one provider
// API key selects the provider; both set without an explicit choice is an
// error rather than a silent preference.
func (c *Config) ValidateAgent() error {
	if c.APIKey == "" {
		return errors.New("config: TICKD_API_KEY is required to reach the ticket service")
	}

	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("config: TICKD_PROVIDER=openai but TICKD_OPENAI_API_KEY is not set")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return errors.New("config: TICKD_PROVIDER=anthropic but TICKD_ANTHROPIC_API_KEY is not set")
		}
	case "":
		haveOpenAI := c.OpenAIAPIKey != ""
		haveAnthropic := c.AnthropicAPIKey != ""
		switch {
		case haveOpenAI && haveAnthropic:
			return errors.New("config: both provider API keys are set; set TICKD_PROVIDER=openai or TICKD_PROVIDER=anthropic")
		case haveOpenAI:
			c.Provider = ProviderOpenAI
		case haveAnthropic:
			c.Provider = ProviderAnthropic
		default:
			return errors.New("config: no provider configured; set TICKD_OPENAI_API_KEY or TICKD_ANTHROPIC_API_KEY")
		}
	default:
		return fmt.Errorf("config: unknown TICKD_PROVIDER %q (valid: openai, anthropic)", c.Provider)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
