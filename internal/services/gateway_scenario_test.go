package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/mocks"
	"github.com/esp32-home/iot-gateway/internal/services"
)

// TestGateway_ReconnectScenario walks the full command loop: a command
// against a dead link is rejected outright, a reconnect replays the
// persisted states, and a repeated command against the converged cache
// is a no-op.
func TestGateway_ReconnectScenario(t *testing.T) {
	f := newFixture(defaultOptions())
	ctx := context.Background()

	// Persisted last-known states from a previous run.
	assert.NoError(t, f.memory.Append(ctx, "airconditioner", constants.StateOn, time.Now()))
	assert.NoError(t, f.memory.Append(ctx, "fan", constants.StateOff, time.Now()))
	assert.NoError(t, f.memory.Append(ctx, "light", constants.StateOn, time.Now()))

	f.liveness.SetReconnectHook(func() {
		f.resync.Resync(ctx)
	})

	// Phase 1: disconnected. The command is rejected with no side
	// effects at all.
	err := f.dispatcher.Submit("airconditioner", constants.StateOn)
	assert.ErrorIs(t, err, services.ErrDeviceUnreachable)
	_, pending := f.dispatcher.Pending("airconditioner")
	assert.False(t, pending)
	f.mqttClient.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Phase 2: a heartbeat arrives. The reconnect hook replays every
	// persisted state onto the command channel.
	f.mqttClient.On("Publish", "esp32/airconditioner/set", byte(1), false, []byte(constants.StateOn)).
		Return(mocks.NewToken(nil))
	f.mqttClient.On("Publish", "esp32/fan/set", byte(1), false, []byte(constants.StateOff)).
		Return(mocks.NewToken(nil))

	// The last device's publish marks the replay as finished.
	done := make(chan struct{})
	f.mqttClient.On("Publish", "esp32/light/set", byte(1), false, []byte(constants.StateOn)).
		Run(func(mock.Arguments) { close(done) }).
		Return(mocks.NewToken(nil))

	f.liveness.RecordEvidence(time.Now())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconnect did not trigger a full resync")
	}
	f.mqttClient.AssertNumberOfCalls(t, "Publish", 3)

	state, ok := f.cache.Get("airconditioner")
	assert.True(t, ok)
	assert.Equal(t, constants.StateOn, state.State)

	// Phase 3: connected, cache already ON. The repeated command is a
	// no-op success with no fourth publish.
	err = f.dispatcher.Submit("airconditioner", constants.StateOn)
	assert.NoError(t, err)
	_, pending = f.dispatcher.Pending("airconditioner")
	assert.False(t, pending)
	f.mqttClient.AssertNumberOfCalls(t, "Publish", 3)
}
