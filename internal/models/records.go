package models

import "time"

// ActionHistory is an append-only record of a confirmed device state
// transition. Rows are written only by the acknowledgement processor
// and the core never updates or deletes them.
type ActionHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Device    string    `gorm:"column:device;index:idx_action_history_device_ts" json:"device"`
	State     string    `gorm:"column:state" json:"state"`
	Timestamp time.Time `gorm:"column:timestamp;index:idx_action_history_device_ts" json:"timestamp"`
}

// TableName overrides gorm's pluralization.
func (ActionHistory) TableName() string { return "action_history" }

// SensorReading is a completed telemetry triple admitted by the save
// gate.
type SensorReading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeviceID    string    `gorm:"column:device_id;index" json:"device_id"`
	Temperature float64   `gorm:"column:temperature" json:"temperature"`
	Humidity    float64   `gorm:"column:humidity" json:"humidity"`
	Light       float64   `gorm:"column:light" json:"light"`
	Timestamp   time.Time `gorm:"column:timestamp;index" json:"timestamp"`
}
