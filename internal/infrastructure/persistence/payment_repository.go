package persistence

import (
	"context"
	"errors"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create inserts a payment record
func (r *GormPaymentRepository) Create(ctx context.Context, p *invoicing.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(models.PaymentRecordModelFromDomain(p)).Error
}

// FindByID finds a payment of a tenant by id
func (r *GormPaymentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.PaymentRecord, error) {
	var model models.PaymentRecordModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByInvoice returns the payments of one invoice in payment order
func (r *GormPaymentRepository) ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.PaymentRecord, error) {
	return r.list(ctx, tenantID, "invoice_id = ?", invoiceID)
}

// ListByInvoices returns the payments of several invoices
func (r *GormPaymentRepository) ListByInvoices(ctx context.Context, tenantID uuid.UUID, invoiceIDs []uuid.UUID) ([]invoicing.PaymentRecord, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, tenantID, "invoice_id IN ?", invoiceIDs)
}

func (r *GormPaymentRepository) list(ctx context.Context, tenantID uuid.UUID, cond string, arg any) ([]invoicing.PaymentRecord, error) {
	var rows []models.PaymentRecordModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where(cond, arg).
		Order("payment_date ASC").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]invoicing.PaymentRecord, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, nil
}

var _ invoicing.PaymentRepository = (*GormPaymentRepository)(nil)
