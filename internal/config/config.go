// Package config defines the service configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PPE_* environment variables.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Blob        BlobConfig        `toml:"blob"`
	Admin       AdminConfig       `toml:"admin"`
	MercadoPago MercadoPagoConfig `toml:"mercadopago"`
	LogLevel    string            `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL           string `toml:"url"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig enables the read-through cache and the settlement lock when
// URL is set.
type RedisConfig struct {
	URL            string   `toml:"url"`
	CacheTTL       duration `toml:"cache_ttl"`
	SettlementLock bool     `toml:"settlement_lock"`
}

// BlobConfig selects where player photos are kept.
type BlobConfig struct {
	Backend        string `toml:"backend"` // "disk" or "s3"
	Dir            string `toml:"dir"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AdminConfig holds the administrator login and the key that guards admin
// routes. An empty APIKey leaves admin routes open.
type AdminConfig struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
	APIKey   string `toml:"api_key"`
}

// MercadoPagoConfig holds the checkout integration. An empty AccessToken
// disables checkout.
type MercadoPagoConfig struct {
	AccessToken string   `toml:"access_token"`
	BaseURL     string   `toml:"base_url"`
	SuccessURL  string   `toml:"success_url"`
	FailureURL  string   `toml:"failure_url"`
	PendingURL  string   `toml:"pending_url"`
	Timeout     duration `toml:"timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config suitable for local development.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{30 * time.Second},
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
		},
		Database: DatabaseConfig{
			MaxConns:      10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL:       duration{30 * time.Second},
			SettlementLock: true,
		},
		Blob: BlobConfig{
			Backend: "disk",
			Dir:     "uploads",
			Region:  "us-east-1",
		},
		Admin: AdminConfig{
			Email: "admin@passapraela.com",
		},
		MercadoPago: MercadoPagoConfig{
			BaseURL: "https://api.mercadopago.com",
			Timeout: duration{10 * time.Second},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, "server: shutdown_timeout must be > 0")
	}

	// Database
	if c.Database.MaxConns < 1 {
		errs = append(errs, "database: max_conns must be >= 1")
	}

	// Redis
	if c.Redis.URL != "" && c.Redis.CacheTTL.Duration <= 0 {
		errs = append(errs, "redis: cache_ttl must be > 0")
	}

	// Blob
	switch c.Blob.Backend {
	case "disk":
		if c.Blob.Dir == "" {
			errs = append(errs, "blob: dir must not be empty for the disk backend")
		}
	case "s3":
		if c.Blob.Bucket == "" {
			errs = append(errs, "blob: bucket must not be empty for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("blob: unknown backend %q (valid: disk, s3)", c.Blob.Backend))
	}

	// Admin
	if c.Admin.Email == "" {
		errs = append(errs, "admin: email must not be empty")
	}

	// Mercado Pago
	if c.MercadoPago.AccessToken != "" && c.MercadoPago.BaseURL == "" {
		errs = append(errs, "mercadopago: base_url is required when access_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
