package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, `
service:
  name: termfleet-core
  driver: sim
devices:
  - id: 1
    name: Main Entrance
    ip: 192.168.1.100
  - id: 2
    name: Back Door
    ip: 192.168.1.101
    port: 4371
    force_udp: true
webhook:
  backend_url: http://backend:8000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if len(cfg.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[0].Port != 4370 {
		t.Errorf("device 1 port = %d, want default 4370", cfg.Devices[0].Port)
	}
	if cfg.Devices[1].Port != 4371 {
		t.Errorf("device 2 port = %d, want 4371", cfg.Devices[1].Port)
	}
	if !cfg.Devices[1].ForceUDP {
		t.Error("device 2 force_udp = false, want true")
	}
	if cfg.Session.ConnectRetries != 10 {
		t.Errorf("connect_retries = %d, want default 10", cfg.Session.ConnectRetries)
	}
	if cfg.Webhook.BackendURL != "http://backend:8000" {
		t.Errorf("backend_url = %q", cfg.Webhook.BackendURL)
	}
	if got := cfg.Devices[0].Addr(); got != "192.168.1.100:4370" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoadRejectsDuplicateDeviceIDs(t *testing.T) {
	path := writeConfigFile(t, `
devices:
  - id: 1
    ip: 192.168.1.100
  - id: 1
    ip: 192.168.1.101
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for duplicate device ids, got nil")
	}
}

func TestLoadRejectsMissingIP(t *testing.T) {
	path := writeConfigFile(t, `
devices:
  - id: 3
    name: Lobby
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for missing ip, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestNumberedEnvDevices(t *testing.T) {
	t.Setenv("DEVICE_1_IP", "10.0.0.10")
	t.Setenv("DEVICE_1_NAME", "Front Gate")
	t.Setenv("DEVICE_2_IP", "10.0.0.11")
	t.Setenv("DEVICE_2_PORT", "4380")
	t.Setenv("DEVICE_2_FORCE_UDP", "true")

	devices := loadDevicesFromEnv()
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}
	if devices[0].Name != "Front Gate" {
		t.Errorf("device 1 name = %q", devices[0].Name)
	}
	if devices[1].Port != 4380 {
		t.Errorf("device 2 port = %d, want 4380", devices[1].Port)
	}
	if !devices[1].ForceUDP {
		t.Error("device 2 force_udp = false, want true")
	}
}

func TestNumberedEnvStopsAtGap(t *testing.T) {
	t.Setenv("DEVICE_1_IP", "10.0.0.10")
	// no DEVICE_2_IP
	t.Setenv("DEVICE_3_IP", "10.0.0.12")

	devices := loadDevicesFromEnv()
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1 (loading stops at first gap)", len(devices))
	}
}

func TestSingleDeviceEnvFallback(t *testing.T) {
	t.Setenv("DEVICE_IP", "10.0.0.50")

	devices := loadDevicesFromEnv()
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(devices))
	}
	if devices[0].ID != 1 || devices[0].Name != "Default Device" {
		t.Errorf("fallback device = %+v", devices[0])
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TERMFLEET_WEBHOOK_URL", "http://override:9000")
	t.Setenv("TERMFLEET_MQTT_HOST", "broker.local")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Webhook.BackendURL != "http://override:9000" {
		t.Errorf("backend_url = %q", cfg.Webhook.BackendURL)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("mqtt host = %q", cfg.MQTT.Broker.Host)
	}
}
