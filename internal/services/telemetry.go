package services

import (
	"context"
	"math"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/models"
	"github.com/esp32-home/iot-gateway/internal/store"
)

// Telemetry metric names, matching the per-metric topic suffixes and
// the combined payload fields.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricLight       = "light"
)

// sensorFrame accumulates the per-device metric fragments until a
// complete reading exists, and remembers the last persisted values for
// the delta gate.
type sensorFrame struct {
	mu          sync.Mutex
	temperature *float64
	humidity    *float64
	light       *float64

	hasSaved   bool
	lastSaveAt time.Time
	lastSaved  models.SensorReading
}

// TelemetryService assembles partial sensor fragments into complete
// readings and applies the time+delta save gate so high-frequency or
// noisy telemetry does not grow storage without bound.
type TelemetryService struct {
	minSaveInterval  time.Duration
	temperatureDelta float64
	humidityDelta    float64
	lightDelta       float64

	sensors store.SensorStore
	logger  zerolog.Logger

	frames cmap.ConcurrentMap[string, *sensorFrame]
}

// NewTelemetryService initializes a new TelemetryService.
func NewTelemetryService(minSaveInterval time.Duration, temperatureDelta, humidityDelta, lightDelta float64,
	sensors store.SensorStore, logger zerolog.Logger) *TelemetryService {

	return &TelemetryService{
		minSaveInterval:  minSaveInterval,
		temperatureDelta: temperatureDelta,
		humidityDelta:    humidityDelta,
		lightDelta:       lightDelta,
		sensors:          sensors,
		logger:           logger,
		frames:           cmap.New[*sensorFrame](),
	}
}

// HandleFragment records one metric value for a device and persists a
// reading once all three metrics are present and the gate admits it.
func (t *TelemetryService) HandleFragment(ctx context.Context, device, metric string, value float64, now time.Time) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		t.logger.Warn().Str("device", device).Str("metric", metric).
			Msg("Dropping non-finite telemetry value")
		return
	}

	frame := t.frame(device)
	frame.mu.Lock()

	switch metric {
	case MetricTemperature:
		frame.temperature = &value
	case MetricHumidity:
		frame.humidity = &value
	case MetricLight:
		frame.light = &value
	default:
		frame.mu.Unlock()
		t.logger.Warn().Str("device", device).Str("metric", metric).
			Msg("Dropping unknown telemetry metric")
		return
	}

	if frame.temperature == nil || frame.humidity == nil || frame.light == nil {
		frame.mu.Unlock()
		return
	}

	reading := models.SensorReading{
		DeviceID:    device,
		Temperature: *frame.temperature,
		Humidity:    *frame.humidity,
		Light:       *frame.light,
		Timestamp:   now,
	}
	admit := t.admits(frame, reading, now)
	if admit {
		frame.hasSaved = true
		frame.lastSaveAt = now
		frame.lastSaved = reading
	}
	// The frame empties after every completed triple; only the last
	// saved values carry over for the delta comparison.
	frame.temperature = nil
	frame.humidity = nil
	frame.light = nil
	frame.mu.Unlock()

	if !admit {
		t.logger.Debug().Str("device", device).Msg("Telemetry reading suppressed by save gate")
		return
	}

	if err := t.sensors.Append(ctx, reading); err != nil {
		t.logger.Error().Err(err).Str("device", device).Msg("Failed to persist sensor reading")
		return
	}

	t.logger.Debug().Str("device", device).
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Float64("light", reading.Light).
		Msg("Persisted sensor reading")
}

// HandleTelemetry ingests a combined structured payload.
func (t *TelemetryService) HandleTelemetry(ctx context.Context, payload models.Telemetry, now time.Time) {
	if payload.DeviceID == "" {
		t.logger.Warn().Msg("Dropping combined telemetry without device id")
		return
	}
	if payload.Temperature != nil {
		t.HandleFragment(ctx, payload.DeviceID, MetricTemperature, *payload.Temperature, now)
	}
	if payload.Humidity != nil {
		t.HandleFragment(ctx, payload.DeviceID, MetricHumidity, *payload.Humidity, now)
	}
	if payload.Light != nil {
		t.HandleFragment(ctx, payload.DeviceID, MetricLight, *payload.Light, now)
	}
}

// admits evaluates the save gate for a complete reading. Callers hold
// the frame lock.
func (t *TelemetryService) admits(frame *sensorFrame, reading models.SensorReading, now time.Time) bool {
	if !frame.hasSaved || now.Sub(frame.lastSaveAt) >= t.minSaveInterval {
		return true
	}
	return math.Abs(reading.Temperature-frame.lastSaved.Temperature) > t.temperatureDelta ||
		math.Abs(reading.Humidity-frame.lastSaved.Humidity) > t.humidityDelta ||
		math.Abs(reading.Light-frame.lastSaved.Light) > t.lightDelta
}

func (t *TelemetryService) frame(device string) *sensorFrame {
	if frame, ok := t.frames.Get(device); ok {
		return frame
	}
	fresh := &sensorFrame{}
	if !t.frames.SetIfAbsent(device, fresh) {
		existing, _ := t.frames.Get(device)
		return existing
	}
	return fresh
}
