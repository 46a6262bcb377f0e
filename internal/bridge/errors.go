package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrAckTimeout is returned by an action body when the device does not
	// acknowledge within the action's timeout.
	ErrAckTimeout = errors.New("bridge: action acknowledgement timed out")

	// ErrDeviceRejected is returned when a device acknowledges with an error.
	ErrDeviceRejected = errors.New("bridge: device rejected action")

	// ErrPublish wraps a failed MQTT publish.
	ErrPublish = errors.New("bridge: publish failed")
)
