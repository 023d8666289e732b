package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultJWTSecret is the development signing secret. Production refuses it.
const DefaultJWTSecret = "your-secret-key"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Port string `koanf:"port"`
	Env  string `koanf:"env"`

	Store struct {
		Backend     string `koanf:"backend"`
		DatabaseURL string `koanf:"database_url"`
		SQLitePath  string `koanf:"sqlite_path"`
		RedisURL    string `koanf:"redis_url"`
	} `koanf:"store"`

	Auth struct {
		JWTSecret string        `koanf:"jwt_secret"`
		TokenTTL  time.Duration `koanf:"token_ttl"` // zero means tokens never expire
	} `koanf:"auth"`

	Tone struct {
		APIKey      string        `koanf:"api_key"`
		BaseURL     string        `koanf:"base_url"`
		Model       string        `koanf:"model"`
		MaxTokens   int           `koanf:"max_tokens"`
		Temperature float64       `koanf:"temperature"`
		Timeout     time.Duration `koanf:"timeout"`
	} `koanf:"tone"`

	Chat struct {
		AutoReply      bool          `koanf:"auto_reply"`
		AutoReplyMin   time.Duration `koanf:"auto_reply_min"`
		AutoReplyMax   time.Duration `koanf:"auto_reply_max"`
		MaxMessageSize int64         `koanf:"max_message_size"`
		PingInterval   time.Duration `koanf:"ping_interval"`
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		SendRate       float64       `koanf:"send_rate"` // websocket sends per second per connection
		SendBurst      int           `koanf:"send_burst"`
	} `koanf:"chat"`

	// Rate limiting
	RateLimitWhitelist []string `koanf:"rate_limit_whitelist"` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `koanf:"auto_block_enabled"`   // Enable auto-blocking after repeated violations
}

var defaults = map[string]interface{}{
	"port":                  "3001",
	"env":                   "development",
	"store.backend":         BackendMemory,
	"store.sqlite_path":     "./data/messenger.db",
	"auth.jwt_secret":       DefaultJWTSecret,
	"auth.token_ttl":        "0s",
	"tone.model":            "gpt-3.5-turbo",
	"tone.max_tokens":       150,
	"tone.temperature":      0.7,
	"tone.timeout":          "10s",
	"chat.auto_reply":       true,
	"chat.auto_reply_min":   "2s",
	"chat.auto_reply_max":   "5s",
	"chat.max_message_size": 4096,
	"chat.ping_interval":    "30s",
	"chat.read_timeout":     "60s",
	"chat.write_timeout":    "10s",
	"chat.send_rate":        5.0,
	"chat.send_burst":       10,
	"auto_block_enabled":    false,
	"rate_limit_whitelist":  "",
}

// envKeys maps the flat environment variable names to config paths.
var envKeys = map[string]string{
	"PORT":                 "port",
	"ENV":                  "env",
	"STORE_BACKEND":        "store.backend",
	"DATABASE_URL":         "store.database_url",
	"SQLITE_PATH":          "store.sqlite_path",
	"REDIS_URL":            "store.redis_url",
	"JWT_SECRET":           "auth.jwt_secret",
	"AUTH_TOKEN_TTL":       "auth.token_ttl",
	"OPENAI_API_KEY":       "tone.api_key",
	"OPENAI_BASE_URL":      "tone.base_url",
	"OPENAI_MODEL":         "tone.model",
	"TONE_TIMEOUT":         "tone.timeout",
	"AUTO_REPLY_ENABLED":   "chat.auto_reply",
	"AUTO_REPLY_MIN_DELAY": "chat.auto_reply_min",
	"AUTO_REPLY_MAX_DELAY": "chat.auto_reply_max",
	"WS_MAX_MESSAGE_SIZE":  "chat.max_message_size",
	"WS_PING_INTERVAL":     "chat.ping_interval",
	"WS_READ_TIMEOUT":      "chat.read_timeout",
	"WS_WRITE_TIMEOUT":     "chat.write_timeout",
	"WS_SEND_RATE":         "chat.send_rate",
	"WS_SEND_BURST":        "chat.send_burst",
	"RATE_LIMIT_WHITELIST": "rate_limit_whitelist",
	"AUTO_BLOCK_ENABLED":   "auto_block_enabled",
}

// Load reads configuration from defaults, an optional TOML file named by
// CONFIG_FILE, and environment variables, in that order. A .env file is
// loaded into the environment first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.RateLimitWhitelist = cleanList(cfg.RateLimitWhitelist)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings. Production is stricter than development.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Chat.AutoReplyMax < c.Chat.AutoReplyMin {
		return errors.New("auto reply max delay must not be below the min delay")
	}

	if c.Env == "production" {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == DefaultJWTSecret {
			return errors.New("JWT_SECRET must be set in production")
		}
		if c.Store.RedisURL == "" {
			return errors.New("REDIS_URL is required in production")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func cleanList(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
