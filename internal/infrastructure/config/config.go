package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the fine-tune MCP service
type Config struct {
	// HTTP Server - using FINE_TUNE_ prefix to avoid collisions
	HTTPPort  string `env:"FINE_TUNE_HTTP_PORT" envDefault:"8092"`
	LogLevel  string `env:"FINE_TUNE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"FINE_TUNE_LOG_FORMAT" envDefault:"json"` // json or console

	// Provider selection
	Provider string `env:"FINE_TUNE_PROVIDER" envDefault:"openai"`

	// OpenAI provider configuration
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIHTTPTimeout int    `env:"OPENAI_HTTP_TIMEOUT" envDefault:"60"` // seconds, per request

	// Optional YAML overlay; env vars still win when set
	ConfigFile string `env:"FINE_TUNE_CONFIG_FILE"`
}

// fileOverlay mirrors the subset of Config supported in the optional
// config file.
type fileOverlay struct {
	HTTPPort      string `yaml:"http_port"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	Provider      string `yaml:"provider"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAITimeout int    `yaml:"openai_http_timeout"`
}

// LoadConfig loads configuration from environment variables, then applies
// the optional config file for keys whose env vars are unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(os.Getenv("FINE_TUNE_LOG_LEVEL")) == "" {
		if global := strings.TrimSpace(os.Getenv("LOG_LEVEL")); global != "" {
			cfg.LogLevel = global
		}
	}
	if strings.TrimSpace(os.Getenv("FINE_TUNE_LOG_FORMAT")) == "" {
		if global := strings.TrimSpace(os.Getenv("LOG_FORMAT")); global != "" {
			cfg.LogFormat = global
		}
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
	}

	if cfg.OpenAIHTTPTimeout <= 0 {
		return nil, fmt.Errorf("OPENAI_HTTP_TIMEOUT must be positive, got %d", cfg.OpenAIHTTPTimeout)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return err
	}

	// Env vars keep precedence; the file only fills unset keys.
	if overlay.HTTPPort != "" && os.Getenv("FINE_TUNE_HTTP_PORT") == "" {
		c.HTTPPort = overlay.HTTPPort
	}
	if overlay.LogLevel != "" && os.Getenv("FINE_TUNE_LOG_LEVEL") == "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != "" && os.Getenv("FINE_TUNE_LOG_FORMAT") == "" {
		c.LogFormat = overlay.LogFormat
	}
	if overlay.Provider != "" && os.Getenv("FINE_TUNE_PROVIDER") == "" {
		c.Provider = overlay.Provider
	}
	if overlay.OpenAIBaseURL != "" && os.Getenv("OPENAI_BASE_URL") == "" {
		c.OpenAIBaseURL = overlay.OpenAIBaseURL
	}
	if overlay.OpenAITimeout > 0 && os.Getenv("OPENAI_HTTP_TIMEOUT") == "" {
		c.OpenAIHTTPTimeout = overlay.OpenAITimeout
	}

	return nil
}
