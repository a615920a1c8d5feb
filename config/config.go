package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	UpstreamConfig       UpstreamConfig       `json:"upstream" yaml:"upstream"`
	StreamConfig         StreamConfig         `json:"stream" yaml:"stream"`
	DashboardConfig      DashboardConfig      `json:"dashboard" yaml:"dashboard"`
	LoggingConfig        LoggingConfig        `json:"logging" yaml:"logging"`
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	ServerConfig         ServerConfig         `json:"server" yaml:"server"`
	AuthConfig           AuthConfig           `json:"auth" yaml:"auth"`
	RedisConfig          RedisConfig          `json:"redis" yaml:"redis"`
	DatabaseConfig       DatabaseConfig       `json:"database" yaml:"database"`
	VaultConfig          VaultConfig          `json:"vault" yaml:"vault"`
}

// UpstreamConfig holds the analysis server HTTP settings
type UpstreamConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	RetryMax       int    `json:"retry_max" yaml:"retry_max"`
	RetryWaitMinMs int    `json:"retry_wait_min_ms" yaml:"retry_wait_min_ms"`
	RetryWaitMaxMs int    `json:"retry_wait_max_ms" yaml:"retry_wait_max_ms"`
}

// StreamConfig holds the push channel settings
type StreamConfig struct {
	URL              string `json:"url" yaml:"url"`
	ReconnectMinMs   int    `json:"reconnect_min_ms" yaml:"reconnect_min_ms"`
	ReconnectMaxMs   int    `json:"reconnect_max_ms" yaml:"reconnect_max_ms"`
	PingIntervalSecs int    `json:"ping_interval_secs" yaml:"ping_interval_secs"`
}

// DashboardConfig holds the view defaults and request policy
type DashboardConfig struct {
	DefaultSymbol        string  `json:"default_symbol" yaml:"default_symbol"`
	DefaultTimeframe     string  `json:"default_timeframe" yaml:"default_timeframe"`
	RefreshIntervalSecs  int     `json:"refresh_interval_secs" yaml:"refresh_interval_secs"`
	BarLimit             int     `json:"bar_limit" yaml:"bar_limit"`
	NarrationTimeoutSecs int     `json:"narration_timeout_secs" yaml:"narration_timeout_secs"`
	DefaultStrategy      string  `json:"default_strategy" yaml:"default_strategy"`
	DefaultCapital       float64 `json:"default_capital" yaml:"default_capital"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`             // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output" yaml:"output"`           // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format" yaml:"json_format"` // false gives console output
}

// CircuitBreakerConfig holds the upstream transport breaker settings
type CircuitBreakerConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	FailureThreshold int  `json:"failure_threshold" yaml:"failure_threshold"` // Consecutive failures before tripping
	CooldownSeconds  int  `json:"cooldown_seconds" yaml:"cooldown_seconds"`
}

// ServerConfig holds the rendering-surface HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port" yaml:"port"`
	Host            string `json:"host" yaml:"host"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins"` // Comma separated, "*" for any
	ProductionMode  bool   `json:"production_mode" yaml:"production_mode"`
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout"` // Seconds
}

// AuthConfig holds bearer token settings for the mutating endpoints
type AuthConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `json:"issuer" yaml:"issuer"`
}

// RedisConfig holds Redis configuration for the catalog cache
type RedisConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Password       string `json:"password" yaml:"password"`
	DB             int    `json:"db" yaml:"db"`
	PoolSize       int    `json:"pool_size" yaml:"pool_size"`
	CatalogTTLSecs int    `json:"catalog_ttl_secs" yaml:"catalog_ttl_secs"`
}

// DatabaseConfig holds PostgreSQL settings for backtest history
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConns int    `json:"max_conns" yaml:"max_conns"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV v2 mount
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Path of the dashboard secrets
}

// Default returns the configuration used when no file or env value is set.
func Default() *Config {
	return &Config{
		UpstreamConfig: UpstreamConfig{
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 15,
			RetryMax:       2,
			RetryWaitMinMs: 200,
			RetryWaitMaxMs: 2000,
		},
		StreamConfig: StreamConfig{
			URL:              "ws://localhost:5000/ws",
			ReconnectMinMs:   500,
			ReconnectMaxMs:   30000,
			PingIntervalSecs: 30,
		},
		DashboardConfig: DashboardConfig{
			DefaultSymbol:        "EUR/USD",
			DefaultTimeframe:     "1h",
			RefreshIntervalSecs:  60,
			BarLimit:             100,
			NarrationTimeoutSecs: 30,
			DefaultStrategy:      "smc_ict",
			DefaultCapital:       10000,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			CooldownSeconds:  30,
		},
		ServerConfig: ServerConfig{
			Port:            8090,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			Issuer: "trading-dashboard",
		},
		RedisConfig: RedisConfig{
			Address:        "localhost:6379",
			PoolSize:       10,
			CatalogTTLSecs: 3600,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "dashboard",
			Database: "dashboard",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "trading-dashboard",
		},
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, in increasing precedence. A .env file is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	path := getEnvOrDefault("CONFIG_FILE", "config.json")
	if err := loadFromFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the dashboard cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UpstreamConfig.BaseURL) == "" {
		return errors.New("config: upstream.base_url is required")
	}
	if strings.TrimSpace(c.StreamConfig.URL) == "" {
		return errors.New("config: stream.url is required")
	}
	if strings.TrimSpace(c.DashboardConfig.DefaultSymbol) == "" {
		return errors.New("config: dashboard.default_symbol is required")
	}
	switch strings.ToLower(c.DashboardConfig.DefaultTimeframe) {
	case "1m", "5m", "15m", "1h", "4h", "1d":
	default:
		return fmt.Errorf("config: unsupported dashboard.default_timeframe %q", c.DashboardConfig.DefaultTimeframe)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required when auth is enabled")
	}
	return nil
}

// ApplySecrets overlays values read from a secret store. Unknown keys are ignored.
func (c *Config) ApplySecrets(secrets map[string]string) {
	if v := secrets["jwt_secret"]; v != "" {
		c.AuthConfig.JWTSecret = v
	}
	if v := secrets["database_password"]; v != "" {
		c.DatabaseConfig.Password = v
	}
	if v := secrets["redis_password"]; v != "" {
		c.RedisConfig.Password = v
	}
}

// Duration helpers

func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c DashboardConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSecs) * time.Second
}

func (c DashboardConfig) NarrationTimeout() time.Duration {
	return time.Duration(c.NarrationTimeoutSecs) * time.Second
}

func (c RedisConfig) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSecs) * time.Second
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// applyEnvOverrides applies environment variable overrides to the config.
// File values act as the defaults so an unset variable keeps them.
func applyEnvOverrides(cfg *Config) {
	// Upstream
	cfg.UpstreamConfig.BaseURL = getEnvOrDefault("UPSTREAM_BASE_URL", cfg.UpstreamConfig.BaseURL)
	cfg.UpstreamConfig.TimeoutSeconds = getEnvIntOrDefault("UPSTREAM_TIMEOUT_SECONDS", cfg.UpstreamConfig.TimeoutSeconds)
	cfg.UpstreamConfig.RetryMax = getEnvIntOrDefault("UPSTREAM_RETRY_MAX", cfg.UpstreamConfig.RetryMax)

	// Stream
	cfg.StreamConfig.URL = getEnvOrDefault("STREAM_URL", cfg.StreamConfig.URL)
	cfg.StreamConfig.ReconnectMinMs = getEnvIntOrDefault("STREAM_RECONNECT_MIN_MS", cfg.StreamConfig.ReconnectMinMs)
	cfg.StreamConfig.ReconnectMaxMs = getEnvIntOrDefault("STREAM_RECONNECT_MAX_MS", cfg.StreamConfig.ReconnectMaxMs)

	// Dashboard
	cfg.DashboardConfig.DefaultSymbol = getEnvOrDefault("DASHBOARD_DEFAULT_SYMBOL", cfg.DashboardConfig.DefaultSymbol)
	cfg.DashboardConfig.DefaultTimeframe = getEnvOrDefault("DASHBOARD_DEFAULT_TIMEFRAME", cfg.DashboardConfig.DefaultTimeframe)
	cfg.DashboardConfig.RefreshIntervalSecs = getEnvIntOrDefault("DASHBOARD_REFRESH_INTERVAL_SECS", cfg.DashboardConfig.RefreshIntervalSecs)
	cfg.DashboardConfig.BarLimit = getEnvIntOrDefault("DASHBOARD_BAR_LIMIT", cfg.DashboardConfig.BarLimit)
	cfg.DashboardConfig.NarrationTimeoutSecs = getEnvIntOrDefault("DASHBOARD_NARRATION_TIMEOUT_SECS", cfg.DashboardConfig.NarrationTimeoutSecs)
	cfg.DashboardConfig.DefaultStrategy = getEnvOrDefault("DASHBOARD_DEFAULT_STRATEGY", cfg.DashboardConfig.DefaultStrategy)
	cfg.DashboardConfig.DefaultCapital = getEnvFloatOrDefault("DASHBOARD_DEFAULT_CAPITAL", cfg.DashboardConfig.DefaultCapital)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Circuit breaker
	cfg.CircuitBreakerConfig.Enabled = getEnvBoolOrDefault("CIRCUIT_BREAKER_ENABLED", cfg.CircuitBreakerConfig.Enabled)
	cfg.CircuitBreakerConfig.FailureThreshold = getEnvIntOrDefault("CIRCUIT_FAILURE_THRESHOLD", cfg.CircuitBreakerConfig.FailureThreshold)
	cfg.CircuitBreakerConfig.CooldownSeconds = getEnvIntOrDefault("CIRCUIT_COOLDOWN_SECONDS", cfg.CircuitBreakerConfig.CooldownSeconds)

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Database
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
}

// loadFromFile merges the file into cfg. YAML is used for .yaml/.yml, JSON otherwise.
func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, cfg)
	default:
		err = json.Unmarshal(file, cfg)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", filename, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes the default configuration to filename
func GenerateSampleConfig(filename string) error {
	cfg := Default()
	cfg.AuthConfig.JWTSecret = "change-me"

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
