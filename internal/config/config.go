package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                    string        `mapstructure:"PORT"`
	Env                     string        `mapstructure:"ENV"`
	DatabaseURL             string        `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32         `mapstructure:"DB_MIN_CONNS"`
	AuthSigningKey          string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer              string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience            string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins             []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout          time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AIAPIKey                string        `mapstructure:"AI_API_KEY"`
	AIBaseURL               string        `mapstructure:"AI_BASE_URL"`
	AIModel                 string        `mapstructure:"AI_MODEL"`
	AITimeout               time.Duration `mapstructure:"AI_TIMEOUT"`
	DefaultAppealWindowDays int           `mapstructure:"DEFAULT_APPEAL_WINDOW_DAYS"`
}

var keys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"AUTH_SIGNING_KEY",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
	"CORS_ORIGINS",
	"REQUEST_TIMEOUT",
	"AI_API_KEY",
	"AI_BASE_URL",
	"AI_MODEL",
	"AI_TIMEOUT",
	"DEFAULT_APPEAL_WINDOW_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_TIMEOUT", "20s")
	v.SetDefault("DEFAULT_APPEAL_WINDOW_DAYS", 180)

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

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AIEnabled reports whether an AI provider credential is configured.
func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SIGNING_KEY must be set so that actor identities come from verified
// tokens. The AI call runs inside a request, so AI_TIMEOUT must leave room
// for the fallback letter before REQUEST_TIMEOUT fires.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be \"development\" or \"production\", got %q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be positive, got %s", c.AITimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.AITimeout >= c.RequestTimeout {
		return fmt.Errorf("AI_TIMEOUT (%s) must be shorter than REQUEST_TIMEOUT (%s)", c.AITimeout, c.RequestTimeout)
	}
	if c.DefaultAppealWindowDays <= 0 {
		return fmt.Errorf("DEFAULT_APPEAL_WINDOW_DAYS must be positive, got %d", c.DefaultAppealWindowDays)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
