package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DBPath != "./data/eduvox.db" {
		t.Errorf("Expected default db path, got %s", cfg.DBPath)
	}
	if cfg.Newsletter.BaseURL != "https://api.buttondown.com" {
		t.Errorf("Expected default newsletter base url, got %s", cfg.Newsletter.BaseURL)
	}
	if cfg.Quota.CompanionRetentionCap != 9 || cfg.Quota.SessionRetentionCap != 10 {
		t.Errorf("Unexpected default retention caps: %+v", cfg.Quota)
	}
	if cfg.Quota.BasicCompanionLimit != 3 || cfg.Quota.CoreCompanionLimit != 10 || cfg.Quota.MonthlyCap != 10 {
		t.Errorf("Unexpected default plan limits: %+v", cfg.Quota)
	}
	if !cfg.Quota.StatsFailOpen {
		t.Error("Expected stats reads to fail open by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("IDENTITY_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("BUTTONDOWN_API_KEY", "bd-key")
	t.Setenv("BASIC_COMPANION_LIMIT", "5")
	t.Setenv("MONTHLY_CONVERSATION_CAP", "20")
	t.Setenv("STATS_FAIL_OPEN", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected db path override, got %s", cfg.DBPath)
	}
	if cfg.WebhookSecret != "whsec_abc" {
		t.Errorf("Expected webhook secret, got %s", cfg.WebhookSecret)
	}
	if cfg.Newsletter.APIKey != "bd-key" {
		t.Errorf("Expected newsletter key, got %s", cfg.Newsletter.APIKey)
	}
	if cfg.Quota.BasicCompanionLimit != 5 {
		t.Errorf("Expected basic limit 5, got %d", cfg.Quota.BasicCompanionLimit)
	}
	if cfg.Quota.MonthlyCap != 20 {
		t.Errorf("Expected monthly cap 20, got %d", cfg.Quota.MonthlyCap)
	}
	if cfg.Quota.StatsFailOpen {
		t.Error("Expected stats fail-open disabled")
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("BASIC_COMPANION_LIMIT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Quota.BasicCompanionLimit != 3 {
		t.Errorf("Expected fallback limit 3, got %d", cfg.Quota.BasicCompanionLimit)
	}
}

func TestLoadRejectsInvalidCap(t *testing.T) {
	t.Setenv("COMPANION_RETENTION_CAP", "0")

	if _, err := Load(); err == nil {
		t.Error("Expected error for zero retention cap")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(_ *Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty db path", func(c *Config) { c.DBPath = "" }, true},
		{"empty newsletter base url", func(c *Config) { c.Newsletter.BaseURL = "" }, true},
		{"zero monthly cap", func(c *Config) { c.Quota.MonthlyCap = 0 }, true},
		{"negative basic limit", func(c *Config) { c.Quota.BasicCompanionLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)

			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://eduvox.example.com", false},
	}

	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.url}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
