package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("AUTH_JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AccessTTL() != 15*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.Auth.AccessTTL())
	}
	if cfg.Auth.AbsoluteSessionTimeout() != 24*time.Hour {
		t.Fatalf("unexpected absolute session timeout: %v", cfg.Auth.AbsoluteSessionTimeout())
	}
	if cfg.APIKey.RateWindow() != time.Minute {
		t.Fatalf("unexpected rate window: %v", cfg.APIKey.RateWindow())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_ACCESS_TOKEN_TTL_MINUTES", "5")
	t.Setenv("AUTH_IMPERSONATION_TTL_MINUTES", "10")
	t.Setenv("APIKEY_DEFAULT_RATE_LIMIT", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AccessTTL() != 5*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.Auth.AccessTTL())
	}
	if cfg.Auth.ImpersonationTTL() != 10*time.Minute {
		t.Fatalf("unexpected impersonation ttl: %v", cfg.Auth.ImpersonationTTL())
	}
	if cfg.APIKey.DefaultRateLimit != 42 {
		t.Fatalf("unexpected default rate limit: %d", cfg.APIKey.DefaultRateLimit)
	}
}

func TestLoadRejectsShortSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("expected short production secret to be rejected")
	}
}
