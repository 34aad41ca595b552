package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Broker != "" || cfg.Transport != "" {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadFromXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "ps", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := `transport = "ws"
ws_url = "ws://hub:8080/ws"
user = "alice"
device_name = "laptop"

[tls]
ca = "/etc/ps/ca.pem"

[player]
track_duration = 42.5
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != "ws" || cfg.WSURL != "ws://hub:8080/ws" || cfg.User != "alice" || cfg.DeviceName != "laptop" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TLS.CA != "/etc/ps/ca.pem" || cfg.Player.TrackDuration != 42.5 {
		t.Fatalf("unexpected nested config %+v", cfg)
	}
}

func TestLoadRejectsDirectory(t *testing.T) {
	if _, err := LoadFile(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
}
