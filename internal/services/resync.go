package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/store"
	"github.com/esp32-home/iot-gateway/pkg/mqtt"
)

// ResyncService replays the last-known-good state of every managed
// device back onto the command channel. It runs after a reconnect and
// on an explicit sync request, so a device that disappeared and came
// back converges without operator intervention.
type ResyncService struct {
	devices     []string
	pacingDelay time.Duration
	qos         int

	mqttClient mqtt.MQTTClient
	dispatcher *DispatcherService
	cache      *StateCache
	history    store.ActionHistoryStore
	locks      *DeviceLocks
	logger     zerolog.Logger

	mu sync.Mutex
}

// NewResyncService initializes a new ResyncService. The device slice
// fixes the replay order.
func NewResyncService(devices []string, pacingDelay time.Duration, qos int,
	mqttClient mqtt.MQTTClient, dispatcher *DispatcherService, cache *StateCache,
	history store.ActionHistoryStore, locks *DeviceLocks, logger zerolog.Logger) *ResyncService {

	return &ResyncService{
		devices:     devices,
		pacingDelay: pacingDelay,
		qos:         qos,
		mqttClient:  mqttClient,
		dispatcher:  dispatcher,
		cache:       cache,
		history:     history,
		locks:       locks,
		logger:      logger,
	}
}

// Resync replays every device in configuration order, pacing the
// publishes so the receiving device is not flooded. Per-device
// failures are logged and skipped; resync is best effort.
func (r *ResyncService) Resync(ctx context.Context) {
	// One replay at a time; a reconnect racing an explicit sync request
	// must not interleave publishes.
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info().Int("devices", len(r.devices)).Msg("Resynchronizing device states")

	for i, device := range r.devices {
		if i > 0 {
			select {
			case <-time.After(r.pacingDelay):
			case <-ctx.Done():
				r.logger.Warn().Err(ctx.Err()).Msg("Resync cancelled")
				return
			}
		}

		state := constants.StateOff
		record, err := r.history.Latest(ctx, device)
		if err != nil {
			r.logger.Error().Err(err).Str("device", device).
				Msg("Failed to read last known state, skipping device")
			continue
		}
		if record != nil {
			state = record.State
		}

		now := time.Now()
		r.locks.Lock(device)
		r.cache.Set(device, state, now)
		r.locks.Unlock(device)

		token := r.mqttClient.Publish(r.dispatcher.CommandTopic(device), byte(r.qos), false, []byte(state))
		token.Wait()
		if err := token.Error(); err != nil {
			r.logger.Error().Err(err).Str("device", device).Str("state", state).
				Msg("Failed to publish resync state, skipping device")
			continue
		}

		r.logger.Info().Str("device", device).Str("state", state).Msg("Replayed last known state")
	}
}
