// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	DBPath        string
	WebhookSecret string // Signing secret for the identity provider's webhooks.
	Newsletter    NewsletterConfig
	Quota         QuotaConfig
}

// NewsletterConfig controls the outbound mailing-list integration.
type NewsletterConfig struct {
	APIKey  string
	BaseURL string
}

// QuotaConfig holds plan ceilings and retention caps.
type QuotaConfig struct {
	CompanionRetentionCap int // Max live companions per user before eviction.
	SessionRetentionCap   int // Max live session records per user before eviction.
	BasicCompanionLimit   int // Lifetime companion ceiling for the basic plan.
	CoreCompanionLimit    int // Lifetime companion ceiling for the core plan.
	MonthlyCap            int // Monthly conversation ceiling for the basic plan.

	// StatsFailOpen controls what a failed lifetime-stats read means for
	// limit checks: true (the historical behavior) treats unreadable
	// stats as zero and allows creation; false denies.
	StatsFailOpen bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/eduvox.db"),
		WebhookSecret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
		Newsletter: NewsletterConfig{
			APIKey:  getEnv("BUTTONDOWN_API_KEY", ""),
			BaseURL: getEnv("BUTTONDOWN_BASE_URL", "https://api.buttondown.com"),
		},
		Quota: QuotaConfig{
			CompanionRetentionCap: getEnvInt("COMPANION_RETENTION_CAP", 9),
			SessionRetentionCap:   getEnvInt("SESSION_RETENTION_CAP", 10),
			BasicCompanionLimit:   getEnvInt("BASIC_COMPANION_LIMIT", 3),
			CoreCompanionLimit:    getEnvInt("CORE_COMPANION_LIMIT", 10),
			MonthlyCap:            getEnvInt("MONTHLY_CONVERSATION_CAP", 10),
			StatsFailOpen:         getEnvBool("STATS_FAIL_OPEN", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Newsletter.BaseURL == "" {
		return fmt.Errorf("BUTTONDOWN_BASE_URL cannot be empty")
	}
	if c.Quota.CompanionRetentionCap <= 0 {
		return fmt.Errorf("COMPANION_RETENTION_CAP must be > 0")
	}
	if c.Quota.SessionRetentionCap <= 0 {
		return fmt.Errorf("SESSION_RETENTION_CAP must be > 0")
	}
	if c.Quota.BasicCompanionLimit <= 0 {
		return fmt.Errorf("BASIC_COMPANION_LIMIT must be > 0")
	}
	if c.Quota.CoreCompanionLimit <= 0 {
		return fmt.Errorf("CORE_COMPANION_LIMIT must be > 0")
	}
	if c.Quota.MonthlyCap <= 0 {
		return fmt.Errorf("MONTHLY_CONVERSATION_CAP must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
