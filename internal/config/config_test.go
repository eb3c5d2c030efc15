package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Backend.BaseURL != "http://127.0.0.1:8000" {
		t.Errorf("backend url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Stream.Width != 640 || cfg.Stream.Height != 480 {
		t.Errorf("stream = %dx%d, want 640x480", cfg.Stream.Width, cfg.Stream.Height)
	}
	if cfg.HTTP.Addr != ":8093" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.MQTT.Enabled {
		t.Error("mqtt should be disabled by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log = %s/%s, want info/text", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
backend:
  base_url: http://camerabox:9000
stream:
  width: 1280
  height: 720
mqtt:
  enabled: true
  broker: tcp://broker:1883
  station_id: station_07
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "http://camerabox:9000" {
		t.Errorf("backend url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Stream.Width != 1280 || cfg.Stream.Height != 720 {
		t.Errorf("stream = %dx%d", cfg.Stream.Width, cfg.Stream.Height)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.StationID != "station_07" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	// Untouched sections keep their defaults.
	if cfg.HTTP.Addr != ":8093" {
		t.Errorf("http addr = %q, want default", cfg.HTTP.Addr)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  base_url: http://from-yaml:9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PREVIEWD_BACKEND_URL", "http://from-env:9000")
	t.Setenv("PREVIEWD_STREAM_WIDTH", "320")
	t.Setenv("PREVIEWD_CORS_ALLOW_ALL", "true")
	t.Setenv("PREVIEWD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "http://from-env:9000" {
		t.Errorf("backend url = %q, env must win over yaml", cfg.Backend.BaseURL)
	}
	if cfg.Stream.Width != 320 {
		t.Errorf("stream width = %d, want 320", cfg.Stream.Width)
	}
	if !cfg.HTTP.CORSAll {
		t.Error("cors flag not applied from env")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != Defaults().Backend.BaseURL {
		t.Errorf("backend url = %q, want default", cfg.Backend.BaseURL)
	}
}

func TestLoad_RejectsBadStreamSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("stream:\n  width: 0\n  height: 480\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject non-positive stream dimensions")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"1", true},
		{" TRUE ", true},
		{"false", false},
		{"0", false},
		{"yes", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := parseBool(tt.in); got != tt.want {
			t.Errorf("parseBool(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
