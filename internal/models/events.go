package models

import "time"

// Heartbeat represents the structure of a device heartbeat message.
type Heartbeat struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// StateChangeEvent is emitted on the notification fan-out whenever a
// device transitions to a newly acknowledged state, or a command goes
// unconfirmed.
type StateChangeEvent struct {
	Device    string    `json:"device"`
	State     string    `json:"state"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Telemetry is the combined structured telemetry payload a device may
// publish instead of per-metric fragments.
type Telemetry struct {
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Light       *float64 `json:"light"`
}
