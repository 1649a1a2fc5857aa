package store

import (
	"context"
	"sync"
	"time"

	"github.com/esp32-home/iot-gateway/internal/models"
)

// MemoryStore keeps history and readings in process memory. It backs
// the gateway when no database is configured and the unit tests.
type MemoryStore struct {
	mu       sync.Mutex
	history  []models.ActionHistory
	readings []models.SensorReading
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records a transition.
func (s *MemoryStore) Append(ctx context.Context, device, state string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, models.ActionHistory{
		ID:        uint(len(s.history) + 1),
		Device:    device,
		State:     state,
		Timestamp: at,
	})
	return nil
}

// Latest returns the most recent record for the device, or nil when none exists.
func (s *MemoryStore) Latest(ctx context.Context, device string) (*models.ActionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Device == device {
			record := s.history[i]
			return &record, nil
		}
	}
	return nil, nil
}

// AppendReading records a completed telemetry reading.
func (s *MemoryStore) AppendReading(ctx context.Context, reading models.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reading.ID = uint(len(s.readings) + 1)
	s.readings = append(s.readings, reading)
	return nil
}

// History returns a copy of all recorded transitions.
func (s *MemoryStore) History() []models.ActionHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActionHistory, len(s.history))
	copy(out, s.history)
	return out
}

// Readings returns a copy of all recorded readings.
func (s *MemoryStore) Readings() []models.SensorReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SensorReading, len(s.readings))
	copy(out, s.readings)
	return out
}

// memorySensorStore adapts MemoryStore to the SensorStore interface.
type memorySensorStore struct {
	inner *MemoryStore
}

// SensorSink exposes the store's SensorStore view.
func (s *MemoryStore) SensorSink() SensorStore {
	return &memorySensorStore{inner: s}
}

func (s *memorySensorStore) Append(ctx context.Context, reading models.SensorReading) error {
	return s.inner.AppendReading(ctx, reading)
}
