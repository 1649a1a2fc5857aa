package services

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/models"
)

// StateCache is the authoritative in-memory view of each device's last
// acknowledged state. It is seeded with OFF for every managed device
// and mutated only by the acknowledgement processor; outgoing commands
// never touch it.
type StateCache struct {
	states cmap.ConcurrentMap[string, models.DeviceState]
}

// NewStateCache seeds the cache with the default OFF state for every
// managed device.
func NewStateCache(devices []string) *StateCache {
	cache := &StateCache{
		states: cmap.New[models.DeviceState](),
	}
	for _, device := range devices {
		cache.states.Set(device, models.DeviceState{
			Device: device,
			State:  constants.StateOff,
		})
	}
	return cache
}

// Get returns the cached state for a device.
func (c *StateCache) Get(device string) (models.DeviceState, bool) {
	return c.states.Get(device)
}

// Set overwrites a device's acknowledged state. Called only by the
// acknowledgement processor and the resync procedure.
func (c *StateCache) Set(device, state string, at time.Time) {
	c.states.Set(device, models.DeviceState{
		Device:          device,
		State:           state,
		LastConfirmedAt: at,
	})
}

// Snapshot returns the current state of every device.
func (c *StateCache) Snapshot() map[string]models.DeviceState {
	return c.states.Items()
}
