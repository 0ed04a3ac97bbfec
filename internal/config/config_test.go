package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettingsMissingFile(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if s != DefaultSettings() {
		t.Errorf("Expected defaults, got: %+v", s)
	}
	if s.Sync.TimeoutDuration() != 15*time.Second {
		t.Errorf("Expected 15s timeout, got: %s", s.Sync.TimeoutDuration())
	}
	if s.Sync.IntervalDuration() != time.Hour {
		t.Errorf("Expected 60m interval, got: %s", s.Sync.IntervalDuration())
	}
	if s.Proxy.HTTP.Port != 3218 || s.Proxy.Socks5.Port != 1080 {
		t.Errorf("Unexpected proxy defaults: %+v", s.Proxy)
	}
}

func TestLoadSettingsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `sync:
  timeout: 30
  auto: false
proxy:
  socks5:
    port: 9050
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Sync.Timeout != 30 || s.Sync.Auto {
		t.Errorf("Expected file values, got: %+v", s.Sync)
	}
	if s.Sync.Interval != 60 || !s.Sync.OnStartup {
		t.Errorf("Expected defaults for absent keys, got: %+v", s.Sync)
	}
	if s.Proxy.Socks5.Host != "127.0.0.1" || s.Proxy.Socks5.Port != 9050 {
		t.Errorf("Unexpected socks5 proxy: %+v", s.Proxy.Socks5)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", "sync: [unclosed"},
		{"negative", "sync:\n  interval: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			os.WriteFile(path, []byte(tt.content), 0o644)
			if _, err := LoadSettings(path); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := DefaultSettings()
	s.Sync.Interval = 5
	s.Proxy.HTTP.Host = "proxy.local"

	if err := SaveSettings(path, s); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got != s {
		t.Errorf("Expected %+v, got: %+v", s, got)
	}
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.yaml")

	cfg, err := Load([]string{"--db-driver", "postgres", "--db-dsn", "postgres://x", "--settings", settings, "--debug"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBDriver != "postgres" || cfg.DBDSN != "postgres://x" || !cfg.Debug {
		t.Errorf("Unexpected options: %+v", cfg.Options)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Expected default listen address, got: %s", cfg.Listen)
	}
	if cfg.Settings != DefaultSettings() {
		t.Errorf("Expected default settings, got: %+v", cfg.Settings)
	}

	if _, err := Load([]string{"--db-driver", "mysql"}); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}
