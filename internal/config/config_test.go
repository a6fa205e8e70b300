package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want 'memory'", cfg.Storage.Backend)
	}
	if cfg.Query.MinScoreThreshold != 0.2 {
		t.Errorf("Query.MinScoreThreshold = %v, want 0.2", cfg.Query.MinScoreThreshold)
	}
	if cfg.Query.SemanticFloor != 0.05 {
		t.Errorf("Query.SemanticFloor = %v, want 0.05", cfg.Query.SemanticFloor)
	}
	if cfg.Query.ResultLimit != 12 {
		t.Errorf("Query.ResultLimit = %d, want 12", cfg.Query.ResultLimit)
	}
	if cfg.Synthesis.TimeoutSeconds != 40 {
		t.Errorf("Synthesis.TimeoutSeconds = %d, want 40", cfg.Synthesis.TimeoutSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected defaults, got backend %q", cfg.Storage.Backend)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	confDir := filepath.Join(dir, ".ekb")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		t.Fatal(err)
	}
	content := `{
		"version": 1,
		"storage": {"backend": "sqlite", "dbPath": "custom.db"},
		"query": {"minScoreThreshold": 0.3}
	}`
	if err := os.WriteFile(filepath.Join(confDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want 'sqlite'", cfg.Storage.Backend)
	}
	if cfg.Storage.DBPath != "custom.db" {
		t.Errorf("Storage.DBPath = %q, want 'custom.db'", cfg.Storage.DBPath)
	}
	if cfg.Query.MinScoreThreshold != 0.3 {
		t.Errorf("Query.MinScoreThreshold = %v, want 0.3", cfg.Query.MinScoreThreshold)
	}
	// Untouched keys keep their defaults.
	if cfg.Query.ResultLimit != 12 {
		t.Errorf("Query.ResultLimit = %d, want default 12", cfg.Query.ResultLimit)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.Backend = "sqlite"

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Storage.Backend != "sqlite" {
		t.Errorf("round-trip backend = %q, want 'sqlite'", loaded.Storage.Backend)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend should fail validation")
	}

	cfg = DefaultConfig()
	cfg.Version = 7
	if err := cfg.Validate(); err == nil {
		t.Error("unsupported version should fail validation")
	}

	cfg = DefaultConfig()
	cfg.Query.ResultLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero result limit should fail validation")
	}
}
