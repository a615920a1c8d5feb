package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadDefaults verifies that a missing config file yields the defaults
func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DashboardConfig.DefaultSymbol != "EUR/USD" {
		t.Errorf("Expected default symbol EUR/USD, got %s", cfg.DashboardConfig.DefaultSymbol)
	}
	if cfg.DashboardConfig.DefaultTimeframe != "1h" {
		t.Errorf("Expected default timeframe 1h, got %s", cfg.DashboardConfig.DefaultTimeframe)
	}
	if cfg.DashboardConfig.RefreshIntervalSecs != 60 {
		t.Errorf("Expected refresh interval 60, got %d", cfg.DashboardConfig.RefreshIntervalSecs)
	}
	if cfg.DashboardConfig.DefaultCapital != 10000 {
		t.Errorf("Expected default capital 10000, got %f", cfg.DashboardConfig.DefaultCapital)
	}
}

// TestLoadJSONFileKeepsUnsetDefaults verifies file values merge over defaults
func TestLoadJSONFileKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"upstream": {"base_url": "http://analysis:5000"}, "dashboard": {"default_symbol": "GBP/USD"}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.UpstreamConfig.BaseURL != "http://analysis:5000" {
		t.Errorf("Expected base url from file, got %s", cfg.UpstreamConfig.BaseURL)
	}
	if cfg.DashboardConfig.DefaultSymbol != "GBP/USD" {
		t.Errorf("Expected symbol from file, got %s", cfg.DashboardConfig.DefaultSymbol)
	}
	if cfg.DashboardConfig.BarLimit != 100 {
		t.Errorf("Expected default bar limit to survive, got %d", cfg.DashboardConfig.BarLimit)
	}
}

// TestLoadYAMLFile verifies yaml config files are parsed by extension
func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "dashboard:\n  default_timeframe: 4h\n  refresh_interval_secs: 30\nredis:\n  enabled: true\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DashboardConfig.DefaultTimeframe != "4h" {
		t.Errorf("Expected timeframe 4h, got %s", cfg.DashboardConfig.DefaultTimeframe)
	}
	if cfg.DashboardConfig.RefreshIntervalSecs != 30 {
		t.Errorf("Expected refresh 30, got %d", cfg.DashboardConfig.RefreshIntervalSecs)
	}
	if !cfg.RedisConfig.Enabled {
		t.Error("Expected redis enabled from yaml")
	}
}

// TestEnvOverridesFile verifies environment variables take precedence
func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 9000}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WEB_PORT", "9100")
	t.Setenv("LOG_JSON", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerConfig.Port != 9100 {
		t.Errorf("Expected port 9100, got %d", cfg.ServerConfig.Port)
	}
	if cfg.LoggingConfig.JSONFormat {
		t.Error("Expected LOG_JSON=false to disable json output")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad timeframe", func(c *Config) { c.DashboardConfig.DefaultTimeframe = "2h" }, true},
		{"missing base url", func(c *Config) { c.UpstreamConfig.BaseURL = " " }, true},
		{"auth without secret", func(c *Config) { c.AuthConfig.Enabled = true }, true},
		{"auth with secret", func(c *Config) {
			c.AuthConfig.Enabled = true
			c.AuthConfig.JWTSecret = "s"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplySecrets(t *testing.T) {
	cfg := Default()
	cfg.ApplySecrets(map[string]string{
		"jwt_secret":        "from-vault",
		"database_password": "pg-pass",
		"unrelated":         "ignored",
	})

	if cfg.AuthConfig.JWTSecret != "from-vault" {
		t.Errorf("Expected jwt secret from vault, got %s", cfg.AuthConfig.JWTSecret)
	}
	if cfg.DatabaseConfig.Password != "pg-pass" {
		t.Errorf("Expected db password from vault, got %s", cfg.DatabaseConfig.Password)
	}
	if cfg.RedisConfig.Password != "" {
		t.Errorf("Expected redis password untouched, got %s", cfg.RedisConfig.Password)
	}
}

func TestGenerateSampleConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatalf("GenerateSampleConfig failed: %v", err)
	}

	cfg := &Config{}
	if err := loadFromFile(path, cfg); err != nil {
		t.Fatalf("loadFromFile failed: %v", err)
	}
	if cfg.DashboardConfig.DefaultStrategy != "smc_ict" {
		t.Errorf("Expected strategy smc_ict, got %s", cfg.DashboardConfig.DefaultStrategy)
	}
}
