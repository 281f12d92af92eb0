package mqtt

import (
	"strings"
	"testing"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
)

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "termfleet/system/status"},
		{"fleet status", topics.FleetStatus(), "termfleet/status/fleet"},
		{"device status", topics.DeviceStatus(2), "termfleet/status/device/2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptionsBrokerURL(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			TLS:      true,
			ClientID: "termfleet-test",
		},
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
	}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 {
		t.Fatalf("servers = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
		t.Errorf("broker URL = %q, want ssl://broker.local:8883", got)
	}
	if opts.ClientID != "termfleet-test" {
		t.Errorf("client id = %q", opts.ClientID)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("c1")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, `"client_id":"c1"`) {
		t.Errorf("online payload missing fields: %s", online)
	}

	offline := buildOfflinePayload("c1")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing graceful reason: %s", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", []byte("x"), 0, false); err != ErrInvalidTopic {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("bad qos: err = %v, want ErrInvalidQoS", err)
	}
}
