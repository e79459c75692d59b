// Package config loads server settings from the environment, optionally
// seeded from a .env file next to the binary.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultJWTSecret = "change-me-in-production"

// Config stores all configuration for the server.
type Config struct {
	Port        string   `mapstructure:"PORT"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`

	// Storage: memory | sqlite | bolt | postgres
	Store       string `mapstructure:"STORE"`
	DBPath      string `mapstructure:"DB_PATH"`
	BoltPath    string `mapstructure:"BOLT_PATH"`
	PostgresDSN string `mapstructure:"POSTGRES_DSN"`

	// Events: empty URLs disable the broker and events go to the log
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	// Auth
	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTExpiration time.Duration `mapstructure:"JWT_EXPIRATION"`

	// Advisory oracle: no key means every call falls back
	GeminiAPIKey  string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel   string        `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL string        `mapstructure:"GEMINI_BASE_URL"` // empty uses the SDK endpoint
	OracleTimeout time.Duration `mapstructure:"ORACLE_TIMEOUT"`

	// Settlement
	RailDelay time.Duration `mapstructure:"RAIL_DELAY"`

	// Contribution rate limit per client IP per minute (needs Redis)
	ContributionRateLimit int `mapstructure:"CONTRIBUTION_RATE_LIMIT"`

	// Integrity audit cron schedule, empty disables it
	AuditSchedule string `mapstructure:"AUDIT_SCHEDULE"`
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"CORS_ORIGINS":            "*",
	"LOG_LEVEL":               "info",
	"STORE":                   "sqlite",
	"DB_PATH":                 "./data/bailaid.db",
	"BOLT_PATH":               "./data/bailaid.bolt",
	"POSTGRES_DSN":            "",
	"REDIS_URL":               "",
	"RABBITMQ_URL":            "",
	"JWT_SECRET":              defaultJWTSecret,
	"JWT_EXPIRATION":          "12h",
	"GEMINI_API_KEY":          "",
	"GEMINI_MODEL":            "gemini-3-flash-preview",
	"GEMINI_BASE_URL":         "",
	"ORACLE_TIMEOUT":          "8s",
	"RAIL_DELAY":              "2s",
	"CONTRIBUTION_RATE_LIMIT": 30,
	"AUDIT_SCHEDULE":          "@every 1h",
}

// LoadConfig reads dir/.env if present, then the environment. Environment
// variables win over the file.
func LoadConfig(dir string) (Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// The hosted-model SDK convention is API_KEY.
	_ = v.BindEnv("GEMINI_API_KEY", "GEMINI_API_KEY", "API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) check() error {
	switch c.Store {
	case "memory", "sqlite", "bolt":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("STORE=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.ContributionRateLimit < 0 {
		return errors.New("CONTRIBUTION_RATE_LIMIT must not be negative")
	}
	return nil
}

// Validate logs settings that work but should not reach production.
func (c Config) Validate(log *zap.Logger) {
	if c.JWTSecret == defaultJWTSecret {
		log.Warn("JWT_SECRET is default, change in production")
	}
	if c.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY is not set, legal guidance will use fallbacks")
	}
	if c.RedisURL == "" && c.ContributionRateLimit > 0 {
		log.Warn("REDIS_URL is not set, contribution rate limit disabled")
	}
}

// splitList accepts both "a,b" in one value and a real list.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
