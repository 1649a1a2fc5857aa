package services

import "sync"

// DeviceLocks is a lock table keyed by device identifier. Mutation of
// per-device state (cache entry, pending command) is serialized per
// key so unrelated devices never block each other. The device set is
// fixed at startup, so the map itself is never written after
// construction.
type DeviceLocks struct {
	locks map[string]*sync.Mutex
}

// NewDeviceLocks builds the lock table for the managed device set.
func NewDeviceLocks(devices []string) *DeviceLocks {
	locks := make(map[string]*sync.Mutex, len(devices))
	for _, device := range devices {
		locks[device] = &sync.Mutex{}
	}
	return &DeviceLocks{locks: locks}
}

// Lock acquires the mutex for a device. It reports false for an
// unknown device without acquiring anything.
func (d *DeviceLocks) Lock(device string) bool {
	mu, ok := d.locks[device]
	if !ok {
		return false
	}
	mu.Lock()
	return true
}

// Unlock releases the mutex for a device.
func (d *DeviceLocks) Unlock(device string) {
	if mu, ok := d.locks[device]; ok {
		mu.Unlock()
	}
}

// Known reports whether the device is part of the managed set.
func (d *DeviceLocks) Known(device string) bool {
	_, ok := d.locks[device]
	return ok
}
