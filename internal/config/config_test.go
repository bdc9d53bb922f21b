package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/medbook_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.Env != "development" || !cfg.IsDev() {
		t.Errorf("expected development env, got %s", cfg.Env)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("unexpected pool defaults: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.EventChannel != "appointments.events" {
		t.Errorf("unexpected event channel: %s", cfg.EventChannel)
	}
	if cfg.StorageTimeoutMS != 3000 {
		t.Errorf("unexpected storage timeout: %d", cfg.StorageTimeoutMS)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/medbook_test")
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("AUTH_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Errorf("expected production env, got %s", cfg.Env)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for missing DATABASE_URL")
	}
}

func TestValidate_ProductionRequiresSecret(t *testing.T) {
	cfg := &Config{
		Env:              "production",
		DatabaseURL:      "postgres://localhost/medbook",
		StorageTimeoutMS: 3000,
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing AUTH_SECRET in production")
	}
	cfg.AuthSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_StorageTimeout(t *testing.T) {
	cfg := &Config{
		Env:         "development",
		DatabaseURL: "postgres://localhost/medbook",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive STORAGE_TIMEOUT_MS")
	}
}
