package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/esp32-home/iot-gateway/internal/models"
)

// MockActionHistoryStore is a mock implementation of the ActionHistoryStore interface
type MockActionHistoryStore struct {
	mock.Mock
}

func (m *MockActionHistoryStore) Append(ctx context.Context, device, state string, at time.Time) error {
	args := m.Called(ctx, device, state, at)
	return args.Error(0)
}

func (m *MockActionHistoryStore) Latest(ctx context.Context, device string) (*models.ActionHistory, error) {
	args := m.Called(ctx, device)
	record, _ := args.Get(0).(*models.ActionHistory)
	return record, args.Error(1)
}

// MockSensorStore is a mock implementation of the SensorStore interface
type MockSensorStore struct {
	mock.Mock
}

func (m *MockSensorStore) Append(ctx context.Context, reading models.SensorReading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}
