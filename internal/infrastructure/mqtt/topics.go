package mqtt

import "fmt"

// Topic prefixes for TermFleet status publishing.
//
// TermFleet publishes to a flat scheme: termfleet/{category}/...
// Consumers (dashboards, alerting) subscribe with wildcards, e.g.
// termfleet/status/#.
const (
	// TopicPrefix is the base for all TermFleet topics.
	TopicPrefix = "termfleet"

	// TopicPrefixSystem is the base for system/lifecycle topics.
	TopicPrefixSystem = "termfleet/system"
)

// Topics provides builders for TermFleet MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// SystemStatus returns the service lifecycle status topic.
// Carries online/offline payloads, including the LWT.
//
// Example: termfleet/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// FleetStatus returns the topic for aggregate fleet status snapshots.
//
// Example: termfleet/status/fleet
func (Topics) FleetStatus() string {
	return TopicPrefix + "/status/fleet"
}

// DeviceStatus returns the topic for a single terminal's status.
//
// Example: termfleet/status/device/2
func (Topics) DeviceStatus(deviceID int) string {
	return fmt.Sprintf("%s/status/device/%d", TopicPrefix, deviceID)
}
