package services_test

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/mocks"
	"github.com/esp32-home/iot-gateway/internal/services"
	"github.com/esp32-home/iot-gateway/internal/store"
)

// Device set shared by the service tests.
var testDevices = []string{"airconditioner", "fan", "light"}

// gatewayFixture wires the core components around a mocked MQTT client
// and the in-memory persistence sink.
type gatewayFixture struct {
	mqttClient *mocks.MockMQTTClient
	memory     *store.MemoryStore
	locks      *services.DeviceLocks
	cache      *services.StateCache
	fanout     *services.Fanout
	liveness   *services.LivenessService
	dispatcher *services.DispatcherService
	ack        *services.AckService
	resync     *services.ResyncService
}

type fixtureOptions struct {
	ackTimeout  time.Duration
	coalesce    bool
	pacingDelay time.Duration
}

func defaultOptions() fixtureOptions {
	return fixtureOptions{
		ackTimeout:  200 * time.Millisecond,
		coalesce:    true,
		pacingDelay: 20 * time.Millisecond,
	}
}

// newFixture builds the core with a long liveness timeout so each test
// drives connectivity explicitly through RecordEvidence. The link
// starts disconnected.
func newFixture(opts fixtureOptions) *gatewayFixture {
	logger := zerolog.Nop()

	f := &gatewayFixture{
		mqttClient: new(mocks.MockMQTTClient),
		memory:     store.NewMemoryStore(),
		locks:      services.NewDeviceLocks(testDevices),
		cache:      services.NewStateCache(testDevices),
		fanout:     services.NewFanout(logger),
	}
	f.liveness = services.NewLivenessService(time.Hour, time.Hour, logger)
	f.dispatcher = services.NewDispatcherService(
		"esp32", 1, opts.ackTimeout, opts.coalesce,
		f.mqttClient, f.cache, f.liveness, f.locks, f.fanout, logger,
	)
	f.ack = services.NewAckService(f.cache, f.dispatcher, f.memory, f.fanout, f.locks, logger)
	f.resync = services.NewResyncService(
		testDevices, opts.pacingDelay, 1,
		f.mqttClient, f.dispatcher, f.cache, f.memory, f.locks, logger,
	)
	return f
}

// connect marks the device link alive.
func (f *gatewayFixture) connect() {
	f.liveness.RecordEvidence(time.Now())
}
