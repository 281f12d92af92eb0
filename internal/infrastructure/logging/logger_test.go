package logging

import (
	"log/slog"
	"testing"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"garbage", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewDoesNotPanic(t *testing.T) {
	cfgs := []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
		{},
	}
	for _, cfg := range cfgs {
		log := New(cfg, "test")
		if log == nil {
			t.Fatal("New() returned nil")
		}
		log.Debug("debug line")
		log.Info("info line", "key", "value")
	}
}

func TestWithAddsAttributes(t *testing.T) {
	log := Default()
	child := log.With("device_id", 7)
	if child == nil || child.Logger == nil {
		t.Fatal("With() returned nil logger")
	}
	// Distinct logger instance, shared handler chain.
	if child == log {
		t.Error("With() returned the same logger")
	}
}
