package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/models"
	"github.com/esp32-home/iot-gateway/internal/store"
)

// AckService consumes device-originated acknowledgement messages. Only
// a genuine transition (reported state differs from the cached one)
// produces a history record and a notification; duplicate or echoed
// acknowledgements fall through silently, which keeps the handler
// idempotent under at-least-once delivery.
type AckService struct {
	cache      *StateCache
	dispatcher *DispatcherService
	history    store.ActionHistoryStore
	fanout     *Fanout
	locks      *DeviceLocks
	logger     zerolog.Logger
}

// NewAckService initializes a new AckService.
func NewAckService(cache *StateCache, dispatcher *DispatcherService, history store.ActionHistoryStore,
	fanout *Fanout, locks *DeviceLocks, logger zerolog.Logger) *AckService {

	return &AckService{
		cache:      cache,
		dispatcher: dispatcher,
		history:    history,
		fanout:     fanout,
		locks:      locks,
		logger:     logger,
	}
}

// HandleAck applies one acknowledgement. Malformed reports are dropped
// locally; they are protocol noise, not caller errors.
func (a *AckService) HandleAck(ctx context.Context, device, reportedState string, now time.Time) {
	if reportedState != constants.StateOn && reportedState != constants.StateOff {
		a.logger.Warn().Str("device", device).Str("payload", reportedState).
			Msg("Ignoring acknowledgement with unknown state token")
		return
	}
	if !a.locks.Known(device) {
		a.logger.Warn().Str("device", device).Msg("Ignoring acknowledgement for unknown device")
		return
	}

	a.locks.Lock(device)

	// A matching acknowledgement settles the in-flight command whether
	// or not it changes the cache.
	if a.dispatcher.Resolve(device, reportedState) {
		a.logger.Debug().Str("device", device).Str("state", reportedState).
			Msg("Pending command confirmed")
	}

	cached, _ := a.cache.Get(device)
	changed := cached.State != reportedState
	if changed {
		a.cache.Set(device, reportedState, now)
	}

	a.locks.Unlock(device)

	if !changed {
		a.logger.Debug().Str("device", device).Str("state", reportedState).
			Msg("Duplicate acknowledgement, nothing recorded")
		return
	}

	// The cache is already updated; a failed append leaves it ahead of
	// persisted history, which is acceptable transiently.
	if err := a.history.Append(ctx, device, reportedState, now); err != nil {
		a.logger.Error().Err(err).Str("device", device).Str("state", reportedState).
			Msg("Failed to persist action history")
	}

	a.fanout.Publish(models.StateChangeEvent{
		Device:    device,
		State:     reportedState,
		Kind:      constants.EventStateChange,
		Timestamp: now,
	})

	a.logger.Info().Str("device", device).Str("state", reportedState).
		Msg("Device state transition confirmed")
}
