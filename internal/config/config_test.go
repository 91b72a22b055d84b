package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PROCFLOW_ENV", "PROCFLOW_ADDRESS", "PROCFLOW_DATABASE_URL",
		"PROCFLOW_MAX_FILE_BYTES", "PROCFLOW_ALLOWED_TYPES",
		"PROCFLOW_SIGNED_TTL", "PROCFLOW_TOKEN_TTL", "PROCFLOW_WORKERS",
	} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "development" || cfg.Address != defaultAddress {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxFileSize != defaultMaxFileSize || cfg.SignedURLTTL != defaultSignedTTL {
		t.Fatalf("unexpected limit defaults: %+v", cfg)
	}
	if len(cfg.SigningSecret) == 0 || len(cfg.JWTSecret) == 0 {
		t.Fatal("expected generated secrets when none are configured")
	}
	if len(cfg.AllowedTypes) != 4 || cfg.AllowedTypes[0] != "application/pdf" {
		t.Fatalf("unexpected allowed types: %v", cfg.AllowedTypes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROCFLOW_ADDRESS", ":9090")
	t.Setenv("PROCFLOW_MAX_FILE_BYTES", "1048576")
	t.Setenv("PROCFLOW_ALLOWED_TYPES", "application/pdf, text/plain")
	t.Setenv("PROCFLOW_SIGNED_TTL", "90s")
	t.Setenv("PROCFLOW_SIGNING_SECRET", "fixed-secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address != ":9090" || cfg.MaxFileSize != 1<<20 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	// Entries are trimmed after splitting.
	if len(cfg.AllowedTypes) != 2 || cfg.AllowedTypes[1] != "text/plain" {
		t.Fatalf("unexpected allowed types: %v", cfg.AllowedTypes)
	}
	if cfg.SignedURLTTL != 90*time.Second {
		t.Fatalf("unexpected signed ttl: %v", cfg.SignedURLTTL)
	}
	if string(cfg.SigningSecret) != "fixed-secret" {
		t.Fatalf("unexpected signing secret: %q", cfg.SigningSecret)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("PROCFLOW_MAX_FILE_BYTES", "not-a-number")
	t.Setenv("PROCFLOW_WORKERS", "-3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxFileSize != defaultMaxFileSize {
		t.Fatalf("expected default max file size, got %d", cfg.MaxFileSize)
	}
	if cfg.Workers != defaultWorkerCount {
		t.Fatalf("expected default worker count, got %d", cfg.Workers)
	}
}
