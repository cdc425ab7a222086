package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"dragonfly/internal/logger"
)

type Config struct {
	// HTTP adapter
	HTTPAddr     string `env:"DRAGONFLY_HTTP_ADDR"      envDefault:":8080"`
	MaxBodyBytes int64  `env:"DRAGONFLY_MAX_BODY_BYTES" envDefault:"1048576"`

	// Directory seed; empty uses the embedded seed
	SeedFile string `env:"DRAGONFLY_SEED_FILE"`

	// Bearer tokens
	TokenSecret string        `env:"DRAGONFLY_TOKEN_SECRET"`
	TokenIssuer string        `env:"DRAGONFLY_TOKEN_ISSUER" envDefault:"dragonfly"`
	TokenTTL    time.Duration `env:"DRAGONFLY_TOKEN_TTL"    envDefault:"12h"`

	// Engine
	DocumentBaseURL  string `env:"DRAGONFLY_DOCUMENT_BASE_URL"  envDefault:"https://documents.dragonfly.local/invoices"`
	DefaultPageLimit int    `env:"DRAGONFLY_DEFAULT_PAGE_LIMIT" envDefault:"20"`
	MaxPageLimit     int    `env:"DRAGONFLY_MAX_PAGE_LIMIT"     envDefault:"100"`

	// Google Sheets payment ledger (optional)
	GoogleSheetURL       string `env:"GOOGLE_SHEET_URL"`
	GoogleSheetWorksheet string `env:"GOOGLE_SHEET_WORKSHEET" envDefault:"Payments"`
	GoogleCredentials    string `env:"GOOGLE_CREDENTIALS"`
	GoogleCredentialFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// Logging Configuration
	LogLevel      string `env:"LOG_LEVEL"       envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT"      envDefault:"console"`
	LogTimeFormat string `env:"LOG_TIME_FORMAT" envDefault:"2006-01-02T15:04:05Z07:00"`
	LogOutput     string `env:"LOG_OUTPUT"      envDefault:"stdout"`
}

func Load() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.DefaultPageLimit < 1 {
		return fmt.Errorf("DRAGONFLY_DEFAULT_PAGE_LIMIT must be positive, got %d", c.DefaultPageLimit)
	}
	if c.MaxPageLimit < c.DefaultPageLimit {
		return fmt.Errorf("DRAGONFLY_MAX_PAGE_LIMIT (%d) is below DRAGONFLY_DEFAULT_PAGE_LIMIT (%d)", c.MaxPageLimit, c.DefaultPageLimit)
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("DRAGONFLY_MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("DRAGONFLY_TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.GoogleSheetURL != "" && c.GoogleSheetWorksheet == "" {
		return fmt.Errorf("GOOGLE_SHEET_WORKSHEET is required when GOOGLE_SHEET_URL is set")
	}
	return nil
}

// RequireTokenSecret reports an error when no signing secret is configured.
// Commands that verify or mint tokens call it; the rest do not need one.
func (c *Config) RequireTokenSecret() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("DRAGONFLY_TOKEN_SECRET is required")
	}
	if len(c.TokenSecret) < 16 {
		return fmt.Errorf("DRAGONFLY_TOKEN_SECRET must be at least 16 bytes")
	}
	return nil
}

// LedgerEnabled reports whether paid invoices are exported to a sheet.
func (c *Config) LedgerEnabled() bool {
	return c.GoogleSheetURL != ""
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
