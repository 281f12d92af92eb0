// Package mqtt wraps the Eclipse Paho client for TermFleet status publishing.
//
// TermFleet publishes retained fleet and per-device status snapshots so
// external dashboards can observe terminal health without polling the
// service. The wrapper adds Last Will and Testament for crash detection,
// automatic reconnection, and bounded publish timeouts.
//
// Publishing is optional: when mqtt.enabled is false in configuration the
// status reporter simply runs without a publisher.
package mqtt
