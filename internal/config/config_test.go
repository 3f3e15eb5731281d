package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Addr())
	}
}

func TestLoad_TOMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
log_level = "debug"

[server]
port = 9090
shutdown_timeout = "12s"

[redis]
url = "redis://localhost:6379/0"
cache_ttl = "1m"

[blob]
backend = "s3"
bucket = "players"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout.Duration != 12*time.Second {
		t.Errorf("expected 12s, got %s", cfg.Server.ShutdownTimeout.Duration)
	}
	if cfg.Redis.CacheTTL.Duration != time.Minute {
		t.Errorf("expected 1m, got %s", cfg.Redis.CacheTTL.Duration)
	}
	if cfg.Blob.Backend != "s3" || cfg.Blob.Bucket != "players" {
		t.Errorf("unexpected blob config: %+v", cfg.Blob)
	}
	// Untouched sections keep their defaults.
	if cfg.Database.MaxConns != 10 {
		t.Errorf("expected default max_conns 10, got %d", cfg.Database.MaxConns)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://conventional")
	t.Setenv("PPE_DATABASE_URL", "postgres://override")
	t.Setenv("PPE_ADMIN_API_KEY", "secret")
	t.Setenv("PPE_SERVER_CORS_ORIGINS", "https://a.com, https://b.com,")
	t.Setenv("PPE_REDIS_SETTLEMENT_LOCK", "false")
	t.Setenv("PPE_SERVER_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://override" {
		t.Errorf("PPE_ var should win, got %s", cfg.Database.URL)
	}
	if cfg.Admin.APIKey != "secret" {
		t.Errorf("expected api key override, got %q", cfg.Admin.APIKey)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.com" {
		t.Errorf("unexpected origins: %v", cfg.Server.CORSOrigins)
	}
	if cfg.Redis.SettlementLock {
		t.Error("expected settlement lock disabled")
	}
	if cfg.Server.ShutdownTimeout.Duration != 3*time.Second {
		t.Errorf("expected 3s, got %s", cfg.Server.ShutdownTimeout.Duration)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Blob.Backend = "ftp"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "server: port", "blob: unknown backend"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestValidate_S3NeedsBucket(t *testing.T) {
	cfg := Defaults()
	cfg.Blob.Backend = "s3"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Errorf("expected bucket error, got %v", err)
	}
}
