package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.Port != DefaultAutohostPort {
		t.Fatalf("default port = %d, want %d", cfg.Engine.Port, DefaultAutohostPort)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := `{"engine": {"autohost_port": 9000}}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.Port != 9000 {
		t.Fatalf("overlay port = %d, want 9000", cfg.Engine.Port)
	}
	// Untouched fields keep their defaults.
	if cfg.Engine.Address != "127.0.0.1" {
		t.Fatalf("address = %q, want default", cfg.Engine.Address)
	}
	if cfg.Application.Logging.Level != "info" {
		t.Fatalf("logging level = %q, want default", cfg.Application.Logging.Level)
	}
}

func TestValidateRejectsNonLoopbackEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Address = "0.0.0.0"

	result := Validate(cfg)
	if result.IsValid() {
		t.Fatalf("non-loopback engine address should fail validation")
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	result := Validate(DefaultConfig())
	if !result.IsValid() {
		t.Fatalf("default config failed validation: %v", result.Errors)
	}
}

func TestValidateMQTTRequiresBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Application.MQTT.Enabled = true
	cfg.Application.MQTT.BrokerURL = ""

	if Validate(cfg).IsValid() {
		t.Fatalf("enabled MQTT without a broker URL should fail validation")
	}
}
