package services

import "errors"

var (
	// ErrDeviceUnreachable is returned when a command is submitted while
	// the physical link is down. Commands are never queued for later
	// delivery; the caller retries once connectivity is restored.
	ErrDeviceUnreachable = errors.New("device unreachable")

	// ErrInvalidCommand is returned for an unknown device identifier or
	// state token, before any side effect.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrCommandPending is returned when coalescing is disabled and a
	// command is already awaiting acknowledgement for the device.
	ErrCommandPending = errors.New("command already pending")

	// ErrPublishFailed is returned when the broker rejected the command
	// publish. No pending command is left behind.
	ErrPublishFailed = errors.New("command publish failed")
)
