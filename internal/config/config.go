// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	AllowedOrigin string
	DBPath        string
	KeyPath       string
	WorkDir       string
	AgentBinary   string
	Relay         RelayConfig
}

// RelayConfig controls the rendezvous relay tunnel. The tunnel is only
// started when URL is non-empty.
type RelayConfig struct {
	URL            string
	PairingToken   string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8787"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		DBPath:        getEnv("DB_PATH", "./data/sessions.db"),
		KeyPath:       getEnv("KEY_PATH", "./data/identity.json"),
		WorkDir:       getEnv("WORK_DIR", defaultWorkDir()),
		AgentBinary:   getEnv("AGENT_BINARY", "claude"),
		Relay: RelayConfig{
			URL:            getEnv("RELAY_URL", ""),
			PairingToken:   getEnv("RELAY_TOKEN", ""),
			InitialBackoff: getEnvDuration("RELAY_BACKOFF_INITIAL", time.Second),
			MaxBackoff:     getEnvDuration("RELAY_BACKOFF_MAX", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.AgentBinary == "" {
		return fmt.Errorf("AGENT_BINARY must not be empty")
	}
	if c.Relay.URL != "" && c.Relay.PairingToken == "" {
		return fmt.Errorf("RELAY_TOKEN is required when RELAY_URL is set")
	}
	if c.Relay.InitialBackoff <= 0 || c.Relay.MaxBackoff < c.Relay.InitialBackoff {
		return fmt.Errorf("relay backoff bounds are inverted")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return getEnvBool("DEV", false)
}

func defaultWorkDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
