package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/test?sslmode=disable")
	t.Setenv("JWT_SECRET", "test-jwt-secret-at-least-32-characters-long")
}

func TestLoad_defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("default port = %q, want 8080", cfg.Port)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("default access TTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 30*24*time.Hour {
		t.Errorf("default refresh TTL = %v", cfg.RefreshTokenTTL)
	}
	if cfg.NonceTTL != 5*time.Minute {
		t.Errorf("default nonce TTL = %v", cfg.NonceTTL)
	}
	if cfg.DevMode {
		t.Error("dev mode should default to off")
	}
	if cfg.Clerk.APIURL != "https://api.clerk.com/v1" {
		t.Errorf("default clerk api url = %q", cfg.Clerk.APIURL)
	}
}

func TestLoad_requiredVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Error("missing DATABASE_URL should fail")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	if _, err := Load(); err == nil {
		t.Error("missing JWT_SECRET should fail")
	}

	t.Setenv("JWT_SECRET", "too-short")
	if _, err := Load(); err == nil {
		t.Error("short JWT_SECRET should fail")
	}
}

func TestLoad_ttlFormats(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("REFRESH_TOKEN_TTL", "3600")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("duration form: got %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != time.Hour {
		t.Errorf("integer-seconds form: got %v", cfg.RefreshTokenTTL)
	}
}

func TestLoad_invalidTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Error("unparseable TTL should fail")
	}
}
