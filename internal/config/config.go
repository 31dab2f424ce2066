package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema          string        `mapstructure:"DB_SCHEMA"`
	FeedBackend       string        `mapstructure:"FEED_BACKEND"`
	FeedRelay         bool          `mapstructure:"FEED_RELAY"`
	FeedReconnectMin  time.Duration `mapstructure:"FEED_RECONNECT_MIN"`
	FeedReconnectMax  time.Duration `mapstructure:"FEED_RECONNECT_MAX"`
	FeedDegradedAfter int           `mapstructure:"FEED_DEGRADED_AFTER"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	StatsCacheTTL     time.Duration `mapstructure:"STATS_CACHE_TTL"`
	ClinicTimezone    string        `mapstructure:"CLINIC_TIMEZONE"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL       string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"FEED_BACKEND", "FEED_RELAY", "FEED_RECONNECT_MIN", "FEED_RECONNECT_MAX", "FEED_DEGRADED_AFTER",
	"REDIS_URL", "STATS_CACHE_TTL", "CLINIC_TIMEZONE",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("FEED_BACKEND", "postgres")
	v.SetDefault("FEED_RELAY", false)
	v.SetDefault("FEED_RECONNECT_MIN", "500ms")
	v.SetDefault("FEED_RECONNECT_MAX", "30s")
	v.SetDefault("FEED_DEGRADED_AFTER", 3)
	v.SetDefault("STATS_CACHE_TTL", "60s")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Unmarshal only sees keys viper knows about.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in development mode (ENV=development); requests without a token are treated as admin")
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

// Location resolves CLINIC_TIMEZONE. "Today" for appointments, the waiting
// list and the dashboard figures is computed in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set in production")
	}

	switch c.FeedBackend {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when FEED_BACKEND is \"redis\"")
		}
	default:
		return fmt.Errorf("FEED_BACKEND must be \"postgres\" or \"redis\", got %q", c.FeedBackend)
	}
	if c.FeedRelay && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when FEED_RELAY is enabled")
	}

	if c.FeedReconnectMin <= 0 || c.FeedReconnectMax <= 0 {
		return fmt.Errorf("FEED_RECONNECT_MIN and FEED_RECONNECT_MAX must be positive")
	}
	if c.FeedReconnectMin > c.FeedReconnectMax {
		return fmt.Errorf("FEED_RECONNECT_MIN (%s) exceeds FEED_RECONNECT_MAX (%s)", c.FeedReconnectMin, c.FeedReconnectMax)
	}
	if c.FeedDegradedAfter < 1 {
		return fmt.Errorf("FEED_DEGRADED_AFTER must be at least 1")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
