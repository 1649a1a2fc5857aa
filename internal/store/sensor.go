package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/esp32-home/iot-gateway/internal/models"
)

// SensorStore is the append-only sink for completed telemetry
// readings. The gateway never reads sensor data back.
type SensorStore interface {
	Append(ctx context.Context, reading models.SensorReading) error
}

// GormSensorStore persists sensor readings through gorm.
type GormSensorStore struct {
	db *gorm.DB
}

// NewGormSensorStore creates a store over an open database handle.
func NewGormSensorStore(db *gorm.DB) *GormSensorStore {
	return &GormSensorStore{db: db}
}

// Append inserts one reading.
func (s *GormSensorStore) Append(ctx context.Context, reading models.SensorReading) error {
	return s.db.WithContext(ctx).Create(&reading).Error
}
