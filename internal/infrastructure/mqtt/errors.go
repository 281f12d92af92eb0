package mqtt

import "errors"

// Domain errors for the MQTT package.
var (
	// ErrConnectionFailed is returned when the initial broker connection fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned when publishing without an active connection.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrInvalidTopic is returned when a topic is empty.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS is returned when a QoS level is out of range.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrPublishFailed is returned when a publish does not complete.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)
