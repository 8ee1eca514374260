package main

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("metrics should be enabled by default")
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("shutdown timeout=%s", cfg.ShutdownTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("database url=%q", cfg.DatabaseURL)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.MetricsEnabled || cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"metrics flag": {"METRICS_ENABLED", "sometimes"},
		"timeout":      {"SHUTDOWN_TIMEOUT", "soon"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := loadConfig(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
