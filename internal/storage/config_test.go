package storage

import "testing"

func TestConfigFromEnvOverridePath(t *testing.T) {
	t.Setenv("CASHFLOW_DB_PATH", "/tmp/cashflow-custom.db")
	t.Setenv("CASHFLOW_DB_MODE", "")

	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv() unexpected error: %v", err)
	}
	if cfg.Mode != ModePlain {
		t.Fatalf("cfg.Mode = %q, want %q", cfg.Mode, ModePlain)
	}
	if cfg.Path != "/tmp/cashflow-custom.db" {
		t.Fatalf("cfg.Path = %q, want %q", cfg.Path, "/tmp/cashflow-custom.db")
	}
}

func TestConfigFromEnvSecureMode(t *testing.T) {
	t.Setenv("CASHFLOW_DB_PATH", "/tmp/cashflow-custom.db")
	t.Setenv("CASHFLOW_DB_MODE", " Secure ")

	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv() unexpected error: %v", err)
	}
	if cfg.Mode != ModeSecure {
		t.Fatalf("cfg.Mode = %q, want %q", cfg.Mode, ModeSecure)
	}
}

func TestConfigFromEnvRejectsUnknownMode(t *testing.T) {
	t.Setenv("CASHFLOW_DB_MODE", "cloud")
	if _, err := configFromEnv(); err == nil {
		t.Fatal("configFromEnv() error = nil, want non-nil")
	}
}
