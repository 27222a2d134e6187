package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tailscale/accessbot/internal/access"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig     `json:"server"`
	Store    StoreConfig      `json:"store"`
	Log      LogConfig        `json:"log"`
	Profiles []access.Profile `json:"profiles"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StoreConfig contains persistent store settings
type StoreConfig struct {
	// Backend selects the store implementation: "sqlite" (default) or
	// "bolt".
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("%w: store path is required", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case "", "sqlite", "bolt":
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if len(c.Profiles) == 0 {
		return fmt.Errorf("%w: at least one profile is required", ErrInvalidConfig)
	}

	for i := range c.Profiles {
		if err := c.Profiles[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Credentials holds the environment-provided secrets. The OAuth client
// pair is required for any device API call; its absence degrades the
// request-creation path to a "not configured" message rather than a
// failed network attempt.
type Credentials struct {
	ClientID      string `env:"TAILSCALE_CLIENT_ID"`
	ClientSecret  string `env:"TAILSCALE_CLIENT_SECRET"`
	ChatToken     string `env:"CHAT_API_TOKEN"`
	ChatBaseURL   string `env:"CHAT_API_URL"`
	WebhookSecret string `env:"ACCESSBOT_WEBHOOK_SECRET"`
}

// Configured reports whether the OAuth client pair is present
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// LoadCredentials reads the secrets from environment variables. A .env
// file is honored when present.
func LoadCredentials() (Credentials, error) {
	_ = godotenv.Load()

	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return Credentials{}, fmt.Errorf("parsing credentials: %w", err)
	}

	return creds, nil
}
