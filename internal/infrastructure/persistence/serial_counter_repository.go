package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// allocateSerialSQL creates the counter at 1 or increments it in a single
// statement. Postgres and SQLite (3.35+) both accept it.
const allocateSerialSQL = `INSERT INTO invoice_serial_counters (tenant_id, year, series, last_value, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (tenant_id, year, series)
DO UPDATE SET last_value = invoice_serial_counters.last_value + 1, updated_at = excluded.updated_at
RETURNING last_value`

// GormSerialCounterRepository implements SerialCounterStore on the invoices
// database. Bound to a transaction, the increment rolls back with it and
// leaves no gap.
type GormSerialCounterRepository struct {
	db *gorm.DB
}

// NewGormSerialCounterRepository creates a new GormSerialCounterRepository
func NewGormSerialCounterRepository(db *gorm.DB) *GormSerialCounterRepository {
	return &GormSerialCounterRepository{db: db}
}

// AllocateNextSerial implements invoicing.SerialCounterStore
func (r *GormSerialCounterRepository) AllocateNextSerial(ctx context.Context, tenantID uuid.UUID, year int, series string) (int64, error) {
	var next int64
	if err := r.db.WithContext(ctx).
		Raw(allocateSerialSQL, tenantID, year, series, time.Now().UTC()).
		Scan(&next).Error; err != nil {
		return 0, fmt.Errorf("increment serial counter: %w", err)
	}
	if next == 0 {
		return 0, fmt.Errorf("increment serial counter: no value returned")
	}
	return next, nil
}

// Current returns the last allocated value, or 0 when nothing was allocated
func (r *GormSerialCounterRepository) Current(ctx context.Context, tenantID uuid.UUID, year int, series string) (int64, error) {
	var model models.SerialCounterModel
	result := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("year = ? AND series = ?", year, series).
		Limit(1).
		Find(&model)
	if result.Error != nil {
		return 0, result.Error
	}
	return model.LastValue, nil
}

var _ invoicing.SerialCounterStore = (*GormSerialCounterRepository)(nil)
