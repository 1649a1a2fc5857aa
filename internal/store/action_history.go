package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/esp32-home/iot-gateway/internal/models"
)

// ActionHistoryStore is the append-only sink for confirmed state
// transitions. Latest returns nil when a device has no history yet;
// callers default to OFF in that case.
type ActionHistoryStore interface {
	Append(ctx context.Context, device, state string, at time.Time) error
	Latest(ctx context.Context, device string) (*models.ActionHistory, error)
}

// GormActionHistoryStore persists action history through gorm.
type GormActionHistoryStore struct {
	db *gorm.DB
}

// NewGormActionHistoryStore creates a store over an open database handle.
func NewGormActionHistoryStore(db *gorm.DB) *GormActionHistoryStore {
	return &GormActionHistoryStore{db: db}
}

// Append inserts one transition record.
func (s *GormActionHistoryStore) Append(ctx context.Context, device, state string, at time.Time) error {
	record := models.ActionHistory{
		Device:    device,
		State:     state,
		Timestamp: at,
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// Latest returns the most recent record for the device, or nil when none exists.
func (s *GormActionHistoryStore) Latest(ctx context.Context, device string) (*models.ActionHistory, error) {
	var record models.ActionHistory
	tx := s.db.WithContext(ctx).
		Where(&models.ActionHistory{Device: device}).
		Order("timestamp DESC").
		First(&record)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &record, nil
}
