package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	base := "front:\n  token: ${FRONT_API_TOKEN}\nsync:\n  overlap: 90s\n"
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("FRONT_API_TOKEN", "tok_env")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Front.Token != "tok_env" {
		t.Fatalf("expected token from env, got %q", cfg.Front.Token)
	}
	if cfg.Sync.Overlap != 90*time.Second {
		t.Fatalf("expected overlap from file, got %s", cfg.Sync.Overlap)
	}
	if cfg.Sync.FullInterval != 24*time.Hour || cfg.Breaker.FailureThreshold != 5 {
		t.Fatalf("expected defaults kept, got %+v %+v", cfg.Sync, cfg.Breaker)
	}
	if cfg.Outbox.BatchSize != 100 || cfg.SlowQueryThreshold != 200*time.Millisecond {
		t.Fatalf("expected outbox and slow query defaults, got %+v %s", cfg.Outbox, cfg.SlowQueryThreshold)
	}
	if cfg.DB.Host != "db.internal" || cfg.Env != "test" {
		t.Fatalf("expected env overrides, got host=%q env=%q", cfg.DB.Host, cfg.Env)
	}
}

func TestValidateRequiresToken(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing token to fail validation")
	}
	cfg.Front.Token = "tok"
	cfg.Front.PageLimit = 500
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected page limit above 100 to fail validation")
	}
}

func TestLoadRejectsInvalidNumericEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("front:\n  token: tok\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("DB_PORT", "five-four-three-two")

	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "DB_PORT") {
		t.Fatalf("expected DB_PORT error, got %v", err)
	}
}
