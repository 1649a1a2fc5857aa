package models

import "time"

// DeviceState is the cached, acknowledged state of a single device.
// It is mutated only by the acknowledgement processor.
type DeviceState struct {
	Device          string    `json:"device"`
	State           string    `json:"state"`
	LastConfirmedAt time.Time `json:"last_confirmed_at"`
}

// PendingCommand is the observable view of the single in-flight
// command for a device between publish and acknowledgement or timeout.
type PendingCommand struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	DesiredState string    `json:"desired_state"`
	IssuedAt     time.Time `json:"issued_at"`
}
