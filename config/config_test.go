package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSourceMissingFileReturnsDefault(t *testing.T) {
	s := FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}
	cfg, err := s.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if !cfg.SSEEnabled || !cfg.MQTTEnabled {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestFileSourceOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	yaml := []byte("sseEnabled: false\nadminKey: secret\nstorage:\n  driver: badger\n  dir: /tmp/x\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := (FileSource{Path: path}).Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.SSEEnabled {
		t.Fatalf("SSEEnabled = true, want false")
	}
	if cfg.AdminKey != "secret" {
		t.Fatalf("AdminKey = %q", cfg.AdminKey)
	}
	if cfg.Storage.Driver != "badger" || cfg.Storage.Dir != "/tmp/x" {
		t.Fatalf("Storage = %+v", cfg.Storage)
	}
	// fields the override left untouched still come from DefaultConfig.
	if !cfg.MQTTEnabled {
		t.Fatalf("MQTTEnabled = false, want default true")
	}
}

func TestStaticSource(t *testing.T) {
	want := Config{AdminKey: "x"}
	got, err := (StaticSource{Value: want}).Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if got.AdminKey != want.AdminKey {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
