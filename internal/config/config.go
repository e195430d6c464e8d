package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	APIToken       string        `mapstructure:"API_TOKEN"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	DownloadDir    string        `mapstructure:"DOWNLOAD_DIR"`

	SandboxPort       string `mapstructure:"SANDBOX_PORT"`
	SandboxSigningKey string `mapstructure:"SANDBOX_SIGNING_KEY"`
	SandboxSeed       int64  `mapstructure:"SANDBOX_SEED"`
	SandboxPatients   int    `mapstructure:"SANDBOX_PATIENTS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
}

// DevSigningKey signs sandbox tokens when no key is configured in
// development.
const DevSigningKey = "practice-sandbox-dev-key"

var keys = []string{
	"ENV", "LOG_LEVEL", "API_BASE_URL", "API_TOKEN", "REQUEST_TIMEOUT", "DOWNLOAD_DIR",
	"SANDBOX_PORT", "SANDBOX_SIGNING_KEY", "SANDBOX_SEED", "SANDBOX_PATIENTS",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_BASE_URL", "http://localhost:8080/api")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("DOWNLOAD_DIR", ".")
	v.SetDefault("SANDBOX_PORT", "8080")
	v.SetDefault("SANDBOX_SEED", 42)
	v.SetDefault("SANDBOX_PATIENTS", 60)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.SandboxSigningKey == "" && cfg.IsDev() {
		cfg.SandboxSigningKey = DevSigningKey
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when running against a production backend.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// the sandbox signing key must be set explicitly and may not be the
// development key.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if !c.IsDev() {
		if c.SandboxSigningKey == "" {
			return fmt.Errorf("SANDBOX_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if c.SandboxSigningKey == DevSigningKey {
			return fmt.Errorf("SANDBOX_SIGNING_KEY must not be the development key when ENV=%q", c.Env)
		}
	}
	if c.SandboxPatients < 0 {
		return fmt.Errorf("SANDBOX_PATIENTS must not be negative, got %d", c.SandboxPatients)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
