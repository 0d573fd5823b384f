// Package config loads storefront settings from the environment (optionally
// seeded from a .env file) and user-facing copy from a YAML file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Backend BackendConfig
	Bridge  BridgeConfig
	Session SessionConfig
	Log     LogConfig

	Messages Messages
}

// BackendConfig describes the catalog backend.
type BackendConfig struct {
	Endpoint         string        `env:"STOREFRONT_BACKEND_URL,default=http://localhost:8000/graphql/"`
	AuthScheme       string        `env:"STOREFRONT_AUTH_SCHEME,default=tma"`
	Channel          string        `env:"STOREFRONT_CHANNEL,default=default-channel"`
	ChannelID        string        `env:"STOREFRONT_CHANNEL_ID"`
	Timeout          time.Duration `env:"STOREFRONT_BACKEND_TIMEOUT,default=15s"`
	MaxRetries       int           `env:"STOREFRONT_BACKEND_MAX_RETRIES,default=2"`
	RetryBackoff     time.Duration `env:"STOREFRONT_BACKEND_RETRY_BACKOFF,default=200ms"`
	BreakerThreshold int           `env:"STOREFRONT_BACKEND_BREAKER_THRESHOLD,default=5"`
	BreakerTimeout   time.Duration `env:"STOREFRONT_BACKEND_BREAKER_TIMEOUT,default=15s"`
	RateLimit        float64       `env:"STOREFRONT_BACKEND_RATE_LIMIT,default=20"`
	RateBurst        int           `env:"STOREFRONT_BACKEND_RATE_BURST,default=10"`
	PageSize         int           `env:"STOREFRONT_BACKEND_PAGE_SIZE,default=100"`
}

// BridgeConfig describes the host bridge listener.
type BridgeConfig struct {
	Addr string `env:"STOREFRONT_ADDR,default=:8080"`
	// AllowedOrigins is a comma separated list; empty allows any origin.
	AllowedOrigins string        `env:"STOREFRONT_ALLOWED_ORIGINS"`
	ConnectRate    float64       `env:"STOREFRONT_CONNECT_RATE,default=5"`
	ConnectBurst   int           `env:"STOREFRONT_CONNECT_BURST,default=10"`
	PingInterval   time.Duration `env:"STOREFRONT_PING_INTERVAL,default=30s"`
	WriteTimeout   time.Duration `env:"STOREFRONT_WRITE_TIMEOUT,default=10s"`
	ReadLimit      int           `env:"STOREFRONT_READ_LIMIT,default=65536"`
}

// Origins splits AllowedOrigins.
func (b BridgeConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(b.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// SessionConfig tunes per-session behavior.
type SessionConfig struct {
	NotificationTTL  time.Duration `env:"STOREFRONT_NOTIFICATION_TTL,default=4s"`
	BuyerEmailDomain string        `env:"STOREFRONT_BUYER_EMAIL_DOMAIN,default=buyers.storefront.local"`
	DefaultCurrency  string        `env:"STOREFRONT_DEFAULT_CURRENCY"`
	MessagesFile     string        `env:"STOREFRONT_MESSAGES_FILE"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `env:"STOREFRONT_LOG_LEVEL,default=info"`
	Format string `env:"STOREFRONT_LOG_FORMAT,default=json"`
}

// Load reads envFile (when non-empty) into the environment, decodes the
// STOREFRONT_* variables and loads the messages file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}

	var cfg Config
	for _, section := range []interface{}{&cfg.Backend, &cfg.Bridge, &cfg.Session, &cfg.Log} {
		if err := envdecode.Decode(section); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
			return nil, fmt.Errorf("decode environment: %w", err)
		}
	}

	msgs, err := LoadMessages(cfg.Session.MessagesFile)
	if err != nil {
		return nil, err
	}
	cfg.Messages = msgs

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("STOREFRONT_BACKEND_URL must be an absolute http(s) URL, got %q", c.Backend.Endpoint)
	}
	if strings.TrimSpace(c.Backend.Channel) == "" {
		return fmt.Errorf("STOREFRONT_CHANNEL is required")
	}
	if strings.TrimSpace(c.Backend.ChannelID) == "" {
		return fmt.Errorf("STOREFRONT_CHANNEL_ID is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("STOREFRONT_BACKEND_TIMEOUT must be positive")
	}
	if c.Backend.MaxRetries < 0 || c.Backend.MaxRetries > 10 {
		return fmt.Errorf("STOREFRONT_BACKEND_MAX_RETRIES must be between 0 and 10")
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("STOREFRONT_BACKEND_RATE_LIMIT must not be negative")
	}
	if c.Backend.PageSize <= 0 || c.Backend.PageSize > 100 {
		return fmt.Errorf("STOREFRONT_BACKEND_PAGE_SIZE must be between 1 and 100")
	}
	if c.Bridge.Addr == "" {
		return fmt.Errorf("STOREFRONT_ADDR is required")
	}
	if c.Bridge.PingInterval <= 0 || c.Bridge.WriteTimeout <= 0 {
		return fmt.Errorf("bridge ping interval and write timeout must be positive")
	}
	if c.Bridge.ReadLimit <= 0 {
		return fmt.Errorf("STOREFRONT_READ_LIMIT must be positive")
	}
	if !strings.Contains(c.Session.BuyerEmailDomain, ".") {
		return fmt.Errorf("STOREFRONT_BUYER_EMAIL_DOMAIN must be a domain name, got %q", c.Session.BuyerEmailDomain)
	}
	return nil
}
