package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/models"
	"github.com/esp32-home/iot-gateway/pkg/mqtt"
)

// pendingCommand is a command awaiting acknowledgement, together with
// its armed timeout. Coalescing carries the superseded desired states
// forward: the device may have applied any of the commands it was
// sent, and an acknowledgement for any of them closes the loop.
type pendingCommand struct {
	id           string
	device       string
	desiredState string
	superseded   []string
	issuedAt     time.Time
	timer        *time.Timer
}

func (c *pendingCommand) resolvesOn(reportedState string) bool {
	if c.desiredState == reportedState {
		return true
	}
	for _, state := range c.superseded {
		if state == reportedState {
			return true
		}
	}
	return false
}

// DispatcherService validates and de-duplicates operator commands,
// enforces the liveness precondition, publishes to the device command
// topic, and arms the per-device acknowledgement timeout. At most one
// command is in flight per device; a newer command supersedes the
// older one when coalescing is enabled.
type DispatcherService struct {
	topicPrefix string
	qos         int
	ackTimeout  time.Duration
	coalesce    bool

	mqttClient mqtt.MQTTClient
	cache      *StateCache
	liveness   *LivenessService
	locks      *DeviceLocks
	fanout     *Fanout
	logger     zerolog.Logger

	pending cmap.ConcurrentMap[string, *pendingCommand]
}

// NewDispatcherService initializes a new DispatcherService.
func NewDispatcherService(topicPrefix string, qos int, ackTimeout time.Duration, coalesce bool,
	mqttClient mqtt.MQTTClient, cache *StateCache, liveness *LivenessService, locks *DeviceLocks,
	fanout *Fanout, logger zerolog.Logger) *DispatcherService {

	return &DispatcherService{
		topicPrefix: topicPrefix,
		qos:         qos,
		ackTimeout:  ackTimeout,
		coalesce:    coalesce,
		mqttClient:  mqttClient,
		cache:       cache,
		liveness:    liveness,
		locks:       locks,
		fanout:      fanout,
		logger:      logger,
		pending:     cmap.New[*pendingCommand](),
	}
}

// CommandTopic returns the command topic for a device.
func (d *DispatcherService) CommandTopic(device string) string {
	return fmt.Sprintf("%s/%s/set", d.topicPrefix, device)
}

// Submit runs the full dispatch sequence for one operator command.
// Repeating a command that matches the cached state is a no-op
// success, not an error.
func (d *DispatcherService) Submit(device, desiredState string) error {
	if desiredState != constants.StateOn && desiredState != constants.StateOff {
		return fmt.Errorf("%w: unknown state token %q", ErrInvalidCommand, desiredState)
	}
	if !d.locks.Known(device) {
		return fmt.Errorf("%w: unknown device %q", ErrInvalidCommand, device)
	}

	d.locks.Lock(device)

	if !d.liveness.IsConnected(time.Now()) {
		d.locks.Unlock(device)
		d.logger.Warn().Str("device", device).Str("desired", desiredState).
			Msg("Rejecting command, device link is down")
		return ErrDeviceUnreachable
	}

	var superseded []string
	if prior, ok := d.pending.Get(device); ok {
		if !d.coalesce {
			d.locks.Unlock(device)
			return fmt.Errorf("%w: device %s", ErrCommandPending, device)
		}
		prior.timer.Stop()
		d.pending.Remove(device)
		superseded = append(prior.superseded, prior.desiredState)
		d.logger.Info().Str("device", device).
			Str("superseded", prior.desiredState).Str("desired", desiredState).
			Msg("Superseding in-flight command")
	} else if cached, ok := d.cache.Get(device); ok && cached.State == desiredState {
		// Repeating a command that matches acknowledged reality is a
		// no-op. With a command in flight the cache is about to move,
		// so the shortcut applies only when nothing is pending.
		d.locks.Unlock(device)
		d.logger.Debug().Str("device", device).Str("desired", desiredState).
			Msg("Command matches acknowledged state, nothing to do")
		return nil
	}

	cmd := &pendingCommand{
		id:           uuid.New().String(),
		device:       device,
		desiredState: desiredState,
		superseded:   superseded,
		issuedAt:     time.Now(),
	}
	cmd.timer = time.AfterFunc(d.ackTimeout, func() {
		d.expire(cmd)
	})
	d.pending.Set(device, cmd)

	// Publish outside the device lock; the broker round-trip must not
	// stall acknowledgements for the same device.
	d.locks.Unlock(device)

	token := d.mqttClient.Publish(d.CommandTopic(device), byte(d.qos), false, []byte(desiredState))
	token.Wait()
	if err := token.Error(); err != nil {
		d.removeIfCurrent(cmd)
		d.logger.Error().Err(err).Str("device", device).Str("desired", desiredState).
			Msg("Failed to publish command")
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	d.logger.Info().Str("device", device).Str("desired", desiredState).
		Msg("Command published, awaiting acknowledgement")
	return nil
}

// Pending returns the observable view of the in-flight command for a
// device, if any.
func (d *DispatcherService) Pending(device string) (models.PendingCommand, bool) {
	cmd, ok := d.pending.Get(device)
	if !ok {
		return models.PendingCommand{}, false
	}
	return models.PendingCommand{
		ID:           cmd.id,
		Device:       cmd.device,
		DesiredState: cmd.desiredState,
		IssuedAt:     cmd.issuedAt,
	}, true
}

// Resolve clears the pending command for a device when the reported
// state matches its desired state or any desired state it superseded.
// Called by the acknowledgement processor under the device lock.
func (d *DispatcherService) Resolve(device, reportedState string) bool {
	cmd, ok := d.pending.Get(device)
	if !ok || !cmd.resolvesOn(reportedState) {
		return false
	}
	cmd.timer.Stop()
	d.pending.Remove(device)
	return true
}

// expire fires when the acknowledgement window closes without a
// matching device report. The cache is left untouched: the device may
// still apply the command late, and only acknowledged reality belongs
// in the cache.
func (d *DispatcherService) expire(cmd *pendingCommand) {
	if !d.removeIfCurrent(cmd) {
		return
	}

	d.logger.Warn().Str("device", cmd.device).Str("desired", cmd.desiredState).
		Dur("after", d.ackTimeout).Msg("Command went unconfirmed")

	d.fanout.Publish(models.StateChangeEvent{
		Device:    cmd.device,
		State:     cmd.desiredState,
		Kind:      constants.EventAckTimeout,
		Timestamp: time.Now(),
	})
}

// removeIfCurrent drops the pending entry only if it still belongs to
// this exact command; a superseding command must not be clobbered by a
// stale timer or a failed publish racing it.
func (d *DispatcherService) removeIfCurrent(cmd *pendingCommand) bool {
	d.locks.Lock(cmd.device)
	defer d.locks.Unlock(cmd.device)

	current, ok := d.pending.Get(cmd.device)
	if !ok || current.id != cmd.id {
		return false
	}
	current.timer.Stop()
	d.pending.Remove(cmd.device)
	return true
}
