package constants

import "time"

// Device state tokens, as published on the command topics.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// Notification event kinds
const (
	// EventStateChange indicates a confirmed device state transition
	EventStateChange = "state_change"
	// EventAckTimeout indicates a command that went unconfirmed within the timeout window
	EventAckTimeout = "ack_timeout"
)

// Liveness evidence policies
const (
	// EvidenceHeartbeat counts only heartbeat/status messages as liveness evidence
	EvidenceHeartbeat = "heartbeat"
	// EvidenceAny counts any device-originated message as liveness evidence
	EvidenceAny = "any"
)

// Defaults applied when the configuration leaves a value unset.
const (
	DefaultTopicPrefix       = "esp32"
	DefaultLivenessTimeout   = 10 * time.Second
	DefaultLivenessTick      = 500 * time.Millisecond
	DefaultAckTimeout        = 3 * time.Second
	DefaultMinSaveInterval   = 1 * time.Second
	DefaultResyncPacing      = 200 * time.Millisecond
	DefaultTemperatureDelta  = 0.1
	DefaultHumidityDelta     = 0.1
	DefaultLightDelta        = 1.0
	DefaultFanoutBufferSize  = 16
	DefaultHTTPListenAddress = ":4000"
)
