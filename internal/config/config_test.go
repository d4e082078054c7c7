package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.ListDefaultLimit != 100 {
		t.Fatalf("expected default list limit 100, got %d", cfg.ListDefaultLimit)
	}
	if cfg.PreviewTimeout != time.Second {
		t.Fatalf("expected 1s preview timeout, got %s", cfg.PreviewTimeout)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("expected 15m access ttl, got %s", cfg.AccessTTL)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("LIST_DEFAULT_LIMIT", "25")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.ListDefaultLimit != 25 {
		t.Fatalf("expected list limit 25, got %d", cfg.ListDefaultLimit)
	}
	if !cfg.MinioUseSSL {
		t.Fatal("expected MinioUseSSL")
	}
}

func TestLoadRejectsInvalidLimit(t *testing.T) {
	t.Setenv("LIST_DEFAULT_LIMIT", "-4")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListDefaultLimit != 100 {
		t.Fatalf("expected fallback limit 100, got %d", cfg.ListDefaultLimit)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.yaml")
	if err := os.WriteFile(path, []byte("API_ADDR: \":9999\"\nREDIS_URL: redis://cache:6379/1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected addr from file, got %q", cfg.Addr)
	}
	if cfg.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("expected redis url from file, got %q", cfg.RedisURL)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
