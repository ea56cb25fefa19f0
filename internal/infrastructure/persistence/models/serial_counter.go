package models

import (
	"time"

	"github.com/google/uuid"
)

// SerialCounterModel is the last sequence handed out for (tenant, year, series).
// Rows are created by the first allocation and only ever incremented.
type SerialCounterModel struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Year      int       `gorm:"primaryKey;autoIncrement:false"`
	Series    string    `gorm:"type:varchar(32);primaryKey;default:''"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SerialCounterModel) TableName() string {
	return "invoice_serial_counters"
}
