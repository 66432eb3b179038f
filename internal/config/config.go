// Package config loads application configuration from defaults, an optional
// YAML file and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the API server.
type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// DatabaseURL selects the Postgres store when set. Otherwise requests come
	// from BackendURL, or from the in-memory store seeded from SeedFile.
	DatabaseURL  string `mapstructure:"database_url"`
	DBMigrate    bool   `mapstructure:"db_migrate"`
	BackendURL   string `mapstructure:"backend_url"`
	BackendToken string `mapstructure:"backend_token"`
	SeedFile     string `mapstructure:"seed_file"`

	// RedisURL enables the Redis draft store and event broker.
	RedisURL string `mapstructure:"redis_url"`

	Routing Routing `mapstructure:"routing"`

	DraftPrefix string        `mapstructure:"draft_prefix"`
	DraftTTL    time.Duration `mapstructure:"draft_ttl"`

	NSQDAddr string `mapstructure:"nsqd_addr"`

	WebhookURLs        []string `mapstructure:"webhook_urls"`
	WebhookSecret      string   `mapstructure:"webhook_secret"`
	WebhookMaxAttempts int      `mapstructure:"webhook_max_attempts"`

	AuthMode       string `mapstructure:"auth_mode"`
	AuthHMACSecret string `mapstructure:"auth_hmac_secret"`
	AuthJWKSURL    string `mapstructure:"auth_jwks_url"`
}

type Routing struct {
	Provider      string  `mapstructure:"provider"` // google or local
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url"`
	RPS           float64 `mapstructure:"rps"`
	Burst         int     `mapstructure:"burst"`
	MaxConcurrent int     `mapstructure:"max_concurrent"`
	SpeedKPH      float64 `mapstructure:"speed_kph"`
}

// keys maps every setting to its environment variable.
var keys = map[string]string{
	"port":                   "PORT",
	"log_level":              "LOG_LEVEL",
	"database_url":           "DATABASE_URL",
	"db_migrate":             "DB_MIGRATE",
	"backend_url":            "BACKEND_URL",
	"backend_token":          "BACKEND_TOKEN",
	"seed_file":              "SEED_FILE",
	"redis_url":              "REDIS_URL",
	"routing.provider":       "ROUTING_PROVIDER",
	"routing.api_key":        "ROUTING_API_KEY",
	"routing.base_url":       "ROUTING_BASE_URL",
	"routing.rps":            "ROUTING_RPS",
	"routing.burst":          "ROUTING_BURST",
	"routing.max_concurrent": "ROUTING_MAX_CONCURRENT",
	"routing.speed_kph":      "ROUTING_SPEED_KPH",
	"draft_prefix":           "DRAFT_PREFIX",
	"draft_ttl":              "DRAFT_TTL",
	"nsqd_addr":              "NSQD_ADDR",
	"webhook_urls":           "WEBHOOK_URLS",
	"webhook_secret":         "WEBHOOK_SECRET",
	"webhook_max_attempts":   "WEBHOOK_MAX_ATTEMPTS",
	"auth_mode":              "AUTH_MODE",
	"auth_hmac_secret":       "AUTH_HMAC_SECRET",
	"auth_jwks_url":          "AUTH_JWKS_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_migrate", true)
	v.SetDefault("routing.provider", "local")
	v.SetDefault("routing.rps", 10)
	v.SetDefault("routing.burst", 5)
	v.SetDefault("routing.max_concurrent", 4)
	v.SetDefault("routing.speed_kph", 40)
	v.SetDefault("draft_prefix", "dispatch-draft")
	v.SetDefault("draft_ttl", 7*24*time.Hour)
	v.SetDefault("webhook_max_attempts", 8)
	v.SetDefault("auth_mode", "dev")
}

// Load reads the configuration. When CONFIG_FILE names a YAML file its values
// override the defaults; environment variables override both.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("config.Load: bind %s: %w", env, err)
		}
	}
	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config.Load: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	// A comma-separated env value arrives as a single element.
	cfg.WebhookURLs = splitCSV(strings.Join(cfg.WebhookURLs, ","))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	switch c.Routing.Provider {
	case "local":
	case "google":
		if c.Routing.APIKey == "" {
			problems = append(problems, "ROUTING_API_KEY is required for the google provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown ROUTING_PROVIDER %q", c.Routing.Provider))
	}
	switch c.AuthMode {
	case "dev":
	case "jwks":
		if c.AuthJWKSURL == "" {
			problems = append(problems, "AUTH_JWKS_URL is required for jwks auth")
		}
	case "hmac":
		if c.AuthHMACSecret == "" {
			problems = append(problems, "AUTH_HMAC_SECRET is required for hmac auth")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown AUTH_MODE %q", c.AuthMode))
	}
	if c.Routing.MaxConcurrent < 1 {
		problems = append(problems, "ROUTING_MAX_CONCURRENT must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
