package cli

import (
	"testing"

	"github.com/walnutpair/previewd/internal/config"
)

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd(&Dependencies{})

	want := map[string]bool{
		"serve":   false,
		"devices": false,
		"start":   false,
		"stop":    false,
		"capture": false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
	}{
		{"text info", config.LogConfig{Level: "info", Format: "text"}},
		{"json debug", config.LogConfig{Level: "debug", Format: "json"}},
		{"unknown level falls back", config.LogConfig{Level: "chatty", Format: "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if log := newLogger(tt.cfg); log == nil {
				t.Fatal("newLogger returned nil")
			}
		})
	}
}
