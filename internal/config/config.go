// Package config loads service settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Model     ModelConfig     `yaml:"model"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	TLS       TLSConfig       `yaml:"tls"`
	Review    ReviewConfig    `yaml:"review"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxBatch        int           `yaml:"max_batch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

type ModelConfig struct {
	Path         string `yaml:"path"`
	SchemaFile   string `yaml:"schema_file"`
	KeywordsFile string `yaml:"keywords_file"`
}

type EnrichConfig struct {
	Content   bool          `yaml:"content"`
	DNS       bool          `yaml:"dns"`
	Resolver  string        `yaml:"resolver"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxBody   int64         `yaml:"max_body"`
	UserAgent string        `yaml:"user_agent"`
}

type StoreConfig struct {
	DSN       string        `yaml:"dsn"`
	Retention time.Duration `yaml:"retention"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TLSConfig struct {
	Domains []string `yaml:"domains"`
	Email   string   `yaml:"email"`
}

type ReviewConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Bedrock bool          `yaml:"bedrock"`
	Timeout time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	PredictPerMinute int `yaml:"predict_per_minute"`
	BatchPerMinute   int `yaml:"batch_per_minute"`
	ExplainPerMinute int `yaml:"explain_per_minute"`
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool { return c.Env == "production" }

// Load reads path (if non-empty), applies defaults and then environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 64 << 10
	}
	if c.Server.MaxBatch == 0 {
		c.Server.MaxBatch = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Model.Path == "" {
		c.Model.Path = "model.json"
	}
	if c.Enrich.Timeout == 0 {
		c.Enrich.Timeout = 10 * time.Second
	}
	if c.Store.Retention == 0 {
		c.Store.Retention = 30 * 24 * time.Hour
	}
	if c.Review.Model == "" {
		if c.Review.Bedrock {
			c.Review.Model = "global.anthropic.claude-sonnet-4-5-20250929-v1:0"
		} else {
			c.Review.Model = "claude-sonnet-4-5"
		}
	}
	if c.Review.Timeout == 0 {
		c.Review.Timeout = 20 * time.Second
	}
	if c.RateLimit.PredictPerMinute == 0 {
		c.RateLimit.PredictPerMinute = 120
	}
	if c.RateLimit.BatchPerMinute == 0 {
		c.RateLimit.BatchPerMinute = 10
	}
	if c.RateLimit.ExplainPerMinute == 0 {
		c.RateLimit.ExplainPerMinute = 10
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("PHISHGUARD_ENV", &c.Env)
	str("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("MODEL_PATH", &c.Model.Path)
	str("SCHEMA_FILE", &c.Model.SchemaFile)
	str("KEYWORDS_FILE", &c.Model.KeywordsFile)
	str("DNS_RESOLVER", &c.Enrich.Resolver)
	str("DATABASE_URL", &c.Store.DSN)
	str("ADMIN_API_KEY", &c.Auth.APIKey)
	str("ACME_EMAIL", &c.TLS.Email)
	str("ANTHROPIC_API_KEY", &c.Review.APIKey)
	str("REVIEW_MODEL", &c.Review.Model)
	if v := getenv("TLS_DOMAINS"); v != "" {
		c.TLS.Domains = splitList(v)
	}

	for _, err := range []error{
		boolean("ENRICH_CONTENT", &c.Enrich.Content),
		boolean("ENRICH_DNS", &c.Enrich.DNS),
		boolean("REVIEW_BEDROCK", &c.Review.Bedrock),
		duration("ENRICH_TIMEOUT", &c.Enrich.Timeout),
		duration("STORE_RETENTION", &c.Store.Retention),
		duration("REQUEST_TIMEOUT", &c.Server.RequestTimeout),
	} {
		if err != nil {
			return fmt.Errorf("config env: %w", err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Server.MaxBatch < 1 {
		return fmt.Errorf("max_batch must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
