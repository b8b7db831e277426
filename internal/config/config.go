// Package config loads application configuration from an optional .env file,
// an optional YAML file and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vspcbal/internal/balance"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Balance  balance.Config `yaml:"balance"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	RateRPS           float64       `yaml:"rate_rps"` // 0 disables rate limiting
	RateBurst         int           `yaml:"rate_burst"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory, postgres, sqlite
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
	Migrate     bool   `yaml:"migrate"`
}

// RedisConfig enables the Redis event broker when URL is set.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Mode        string `yaml:"mode"` // dev, hmac
	HMACSecret  string `yaml:"hmac_secret"`
	TenantClaim string `yaml:"tenant_claim"`
	RoleClaim   string `yaml:"role_claim"`
}

// LogConfig mirrors LOG_LEVEL and LOG_FORMAT.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WebhooksConfig configures outbound notifications.
type WebhooksConfig struct {
	MaxAttempts   int            `yaml:"max_attempts"`
	PollInterval  time.Duration  `yaml:"poll_interval"`
	Timeout       time.Duration  `yaml:"timeout"`
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// Subscription is a webhook target. An empty Tenant matches every tenant and
// empty Events matches every event type.
type Subscription struct {
	ID     string   `yaml:"id"`
	Tenant string   `yaml:"tenant"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// Matches reports whether the subscription wants the event.
func (s Subscription) Matches(tenant, eventType string) bool {
	if s.Tenant != "" && s.Tenant != tenant {
		return false
	}
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			RateBurst:         20,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Store:   StoreConfig{Driver: "memory", SQLitePath: "vspcbal.db", Migrate: true},
		Redis:   RedisConfig{Channel: "vspcbal:events"},
		Auth:    AuthConfig{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Balance: balance.DefaultConfig(),
		Webhooks: WebhooksConfig{
			MaxAttempts:  6,
			PollInterval: time.Second,
			Timeout:      5 * time.Second,
		},
	}
}

// Load reads .env (if present), then path (if non-empty), then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	num := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			}
		}
	}
	atoi := func(dst *int) func(string) error {
		return func(s string) (err error) { *dst, err = strconv.Atoi(s); return }
	}
	atof := func(dst *float64) func(string) error {
		return func(s string) (err error) { *dst, err = strconv.ParseFloat(s, 64); return }
	}

	num("PORT", atoi(&cfg.Server.Port))
	num("RATE_RPS", atof(&cfg.Server.RateRPS))
	num("RATE_BURST", atoi(&cfg.Server.RateBurst))
	str("STORE_DRIVER", &cfg.Store.Driver)
	if v, ok := lookup("DATABASE_URL"); ok && strings.TrimSpace(v) != "" {
		cfg.Store.DatabaseURL = strings.TrimSpace(v)
		if _, explicit := lookup("STORE_DRIVER"); !explicit && cfg.Store.Driver == "memory" {
			cfg.Store.Driver = "postgres"
		}
	}
	str("SQLITE_PATH", &cfg.Store.SQLitePath)
	num("DB_MIGRATE", func(s string) (err error) { cfg.Store.Migrate, err = strconv.ParseBool(s); return })
	str("REDIS_URL", &cfg.Redis.URL)
	str("AUTH_MODE", &cfg.Auth.Mode)
	str("AUTH_HMAC_SECRET", &cfg.Auth.HMACSecret)
	str("AUTH_TENANT_CLAIM", &cfg.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &cfg.Auth.RoleClaim)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	num("WEBHOOK_MAX_ATTEMPTS", atoi(&cfg.Webhooks.MaxAttempts))
	num("BALANCE_TOLERANCE", atof(&cfg.Balance.Tolerance))
	num("BALANCE_MAX_ITERATIONS", atoi(&cfg.Balance.MaxIterations))

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store driver postgres requires database_url")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store driver sqlite requires sqlite_path")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("auth mode hmac requires hmac_secret")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Webhooks.MaxAttempts < 1 {
		return fmt.Errorf("webhooks max_attempts must be >= 1")
	}
	for i, s := range c.Webhooks.Subscriptions {
		if s.URL == "" {
			return fmt.Errorf("webhook subscription %d has no url", i)
		}
	}
	return c.Balance.Validate()
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Server.Port) }
