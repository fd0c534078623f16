package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestFromEnv_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	yaml := `
addr: ":9000"
databasePath: /var/lib/roomsync.db
allowedOrigins: ["https://plan.example"]
compactEvery: 50
presenceWindow: 10s
profiling:
  enabled: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("ROOMSYNC_ADDR", ":9100")
	t.Setenv("ROOMSYNC_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ROOMSYNC_WRITE_TIMEOUT", "5s")
	t.Setenv("ROOMSYNC_COMPACT_EVERY", "not-a-number")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Addr != ":9100" {
		t.Errorf("Expected env to override file addr, got %s", cfg.Addr)
	}
	if cfg.DatabasePath != "/var/lib/roomsync.db" {
		t.Errorf("Expected database path from file, got %s", cfg.DatabasePath)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("Expected origins from env, got %v", cfg.AllowedOrigins)
	}
	if cfg.CompactEvery != 50 {
		t.Errorf("Expected invalid env value to fall back to file value 50, got %d", cfg.CompactEvery)
	}
	if cfg.PresenceWindow != 10*time.Second || cfg.WriteTimeout != 5*time.Second {
		t.Errorf("Expected durations 10s and 5s, got %s and %s", cfg.PresenceWindow, cfg.WriteTimeout)
	}
	if !cfg.Profiling.Enabled || cfg.Profiling.Port != "42069" {
		t.Errorf("Expected profiling enabled on default port, got %+v", cfg.Profiling)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("ROOMSYNC_COMPACT_EVERY", "0")

	if _, err := FromEnv(); err == nil {
		t.Error("Expected validation error for compactEvery=0")
	}

	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := FromEnv(); err == nil {
		t.Error("Expected error for missing config file")
	}
}
