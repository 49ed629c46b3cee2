package models

import (
	"time"
)

// Setting is a key/value row, the current configuration snapshot is stored
// JSON encoded under CurrentSettingsKey.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64;column:key"`
	Value     string    `gorm:"type:text;column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

const CurrentSettingsKey = "current_settings"
