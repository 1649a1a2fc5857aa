package services_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/models"
	"github.com/esp32-home/iot-gateway/internal/services"
)

func stateChange(device, state string) models.StateChangeEvent {
	return models.StateChangeEvent{
		Device:    device,
		State:     state,
		Kind:      constants.EventStateChange,
		Timestamp: time.Now(),
	}
}

// TestFanout_DeliversToAllSubscribers tests exactly-once delivery per
// emission to every registered consumer.
func TestFanout_DeliversToAllSubscribers(t *testing.T) {
	fanout := services.NewFanout(zerolog.Nop())

	first := fanout.Subscribe()
	second := fanout.Subscribe()
	defer fanout.Unsubscribe(first)
	defer fanout.Unsubscribe(second)

	fanout.Publish(stateChange("fan", constants.StateOn))

	assert.Len(t, first, 1)
	assert.Len(t, second, 1)

	event := <-first
	assert.Equal(t, "fan", event.Device)
	assert.Equal(t, constants.StateOn, event.State)
}

// TestFanout_SlowSubscriberDoesNotBlock tests that a consumer with a
// full buffer loses events rather than stalling emission.
func TestFanout_SlowSubscriberDoesNotBlock(t *testing.T) {
	fanout := services.NewFanout(zerolog.Nop())

	slow := fanout.Subscribe()
	healthy := fanout.Subscribe()
	defer fanout.Unsubscribe(slow)
	defer fanout.Unsubscribe(healthy)

	// Nobody reads "slow"; overflow its buffer and keep publishing.
	total := constants.DefaultFanoutBufferSize + 5
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			fanout.Publish(stateChange("fan", constants.StateOn))
			<-healthy
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Len(t, slow, constants.DefaultFanoutBufferSize)
}

// TestFanout_UnsubscribeClosesChannel tests consumer teardown.
func TestFanout_UnsubscribeClosesChannel(t *testing.T) {
	fanout := services.NewFanout(zerolog.Nop())

	ch := fanout.Subscribe()
	fanout.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// A second unsubscribe is a harmless no-op.
	fanout.Unsubscribe(ch)

	// Publishing after the consumer left must not panic.
	fanout.Publish(stateChange("fan", constants.StateOff))
}
