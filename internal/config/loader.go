package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (if any) over the built-in defaults,
// loads a .env file if present, and applies environment overrides. The
// returned Config has NOT been validated; call Validate after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads PPE_* environment variables, plus the
// conventional PORT, DATABASE_URL and REDIS_URL, and overwrites the
// corresponding fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// Platform conventions first so PPE_* wins when both are set.
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "PPE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PPE_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.RequestTimeout, "PPE_SERVER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "PPE_SERVER_SHUTDOWN_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.URL, "PPE_DATABASE_URL")
	setInt(&cfg.Database.MaxConns, "PPE_DATABASE_MAX_CONNS")
	setBool(&cfg.Database.RunMigrations, "PPE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "PPE_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "PPE_REDIS_CACHE_TTL")
	setBool(&cfg.Redis.SettlementLock, "PPE_REDIS_SETTLEMENT_LOCK")

	// ── Blob ──
	setStr(&cfg.Blob.Backend, "PPE_BLOB_BACKEND")
	setStr(&cfg.Blob.Dir, "PPE_BLOB_DIR")
	setStr(&cfg.Blob.Endpoint, "PPE_BLOB_ENDPOINT")
	setStr(&cfg.Blob.Region, "PPE_BLOB_REGION")
	setStr(&cfg.Blob.Bucket, "PPE_BLOB_BUCKET")
	setStr(&cfg.Blob.AccessKey, "PPE_BLOB_ACCESS_KEY")
	setStr(&cfg.Blob.SecretKey, "PPE_BLOB_SECRET_KEY")
	setBool(&cfg.Blob.ForcePathStyle, "PPE_BLOB_FORCE_PATH_STYLE")

	// ── Admin ──
	setStr(&cfg.Admin.Email, "PPE_ADMIN_EMAIL")
	setStr(&cfg.Admin.Password, "PPE_ADMIN_PASSWORD")
	setStr(&cfg.Admin.APIKey, "PPE_ADMIN_API_KEY")

	// ── Mercado Pago ──
	setStr(&cfg.MercadoPago.AccessToken, "PPE_MERCADOPAGO_ACCESS_TOKEN")
	setStr(&cfg.MercadoPago.BaseURL, "PPE_MERCADOPAGO_BASE_URL")
	setStr(&cfg.MercadoPago.SuccessURL, "PPE_MERCADOPAGO_SUCCESS_URL")
	setStr(&cfg.MercadoPago.FailureURL, "PPE_MERCADOPAGO_FAILURE_URL")
	setStr(&cfg.MercadoPago.PendingURL, "PPE_MERCADOPAGO_PENDING_URL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PPE_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
