package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Store.Backend != BackendMemory {
		t.Errorf("default backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %+v, want info/json", cfg.Logging)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
  path: /tmp/docs.db
logging:
  level: debug
  format: console
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.Path != "/tmp/docs.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics.enabled = false")
	}
}

func TestLoadDefaultsSQLitePath(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "docgate.db" {
		t.Errorf("defaulted path = %q, want docgate.db", cfg.Store.Path)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "store:\n  backend: cassandra\n"},
		{"unknown log level", "logging:\n  level: verbose\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() accepted invalid config")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOCGATE_STORE_BACKEND", "bolt")
	t.Setenv("DOCGATE_STORE_PATH", "/var/lib/docs.bolt")
	t.Setenv("DOCGATE_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "store:\n  backend: memory\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != BackendBolt || cfg.Store.Path != "/var/lib/docs.bolt" {
		t.Errorf("store = %+v, want env override", cfg.Store)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Logging.Level)
	}
}
