package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Output.FormatVersion != 0 {
		t.Errorf("Expected FormatVersion=0, got %d", cfg.Output.FormatVersion)
	}
	if cfg.Output.Extension != ".sb" {
		t.Errorf("Expected Extension=.sb, got %s", cfg.Output.Extension)
	}
	if cfg.Listing.Tokens {
		t.Error("Expected Tokens=false")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected Port=8080, got %d", cfg.API.Port)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()
	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("Expected path to end with config.toml, got %s", path)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Output.Extension != ".sb" {
		t.Errorf("Expected defaults for missing file, got %s", cfg.Output.Extension)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Output.Extension = ".bin"
	cfg.API.Port = 9999
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.Output.Extension != ".bin" {
		t.Errorf("Expected Extension=.bin, got %s", loaded.Output.Extension)
	}
	if loaded.API.Port != 9999 {
		t.Errorf("Expected Port=9999, got %d", loaded.API.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SMAS_OUTPUT_EXTENSION", ".out")
	t.Setenv("SMAS_API_PORT", "7070")
	t.Setenv("SMAS_LIST_TOKENS", "1")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Output.Extension != ".out" {
		t.Errorf("Expected Extension=.out, got %s", cfg.Output.Extension)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("Expected Port=7070, got %d", cfg.API.Port)
	}
	if !cfg.Listing.Tokens {
		t.Error("Expected Tokens=true from environment")
	}
}

func TestInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("Expected error for invalid TOML")
	}
}
