package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// columns frozen at issuance; Update never writes them
var frozenInvoiceColumns = []string{
	"id", "tenant_id", "created_at", "invoice_number", "type",
	"company", "customer", "customer_id", "customer_name", "lines", "issue_date",
	"currency", "series", "retention", "social_security_rate",
	"stamp_duty", "split_payment", "reverse_charge",
	"totals", "subtotal", "total_vat", "total", "net_to_pay",
}

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Create inserts a new invoice
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *invoicing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return invoicing.NewDuplicateInvoiceNumberError(inv.InvoiceNumber)
		}
		return err
	}
	return nil
}

// FindByID finds an invoice of a tenant by id
func (r *GormInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.findOne(r.db.WithContext(ctx), tenantID, id)
}

// FindByIDForUpdate loads the invoice with SELECT ... FOR UPDATE. Outside a
// transaction the lock is released immediately.
func (r *GormInvoiceRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func (r *GormInvoiceRepository) findOne(db *gorm.DB, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := db.Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicing.NewInvoiceNotFoundError(id.String())
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds an invoice by its document number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("invoice_number = ?", number).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicing.NewInvoiceNotFoundError(number)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Update saves the mutable fields with optimistic locking. On success the
// aggregate's Version is advanced to the stored value.
func (r *GormInvoiceRepository) Update(ctx context.Context, inv *invoicing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	model.Version = inv.Version + 1

	result := r.db.WithContext(ctx).
		Model(model).
		Where("tenant_id = ? AND version = ?", inv.TenantID, inv.Version).
		Select("*").
		Omit(frozenInvoiceColumns...).
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
			Scopes(tenantScope(inv.TenantID)).
			Where("id = ?", inv.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return invoicing.NewInvoiceNotFoundError(inv.ID.String())
		}
		return shared.ErrConcurrencyConflict
	}
	inv.Version = model.Version
	inv.UpdatedAt = model.UpdatedAt
	return nil
}

// List returns one page of a tenant's invoices and the total match count
func (r *GormInvoiceRepository) List(ctx context.Context, tenantID uuid.UUID, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID), invoiceFilterScope(filter))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "issue_date")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var rows []models.InvoiceModel
	if err := query.
		Order(orderBy + " " + orderDir).
		Order("invoice_number " + orderDir).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	invoices := make([]invoicing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, total, nil
}

func invoiceFilterScope(filter invoicing.InvoiceFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(filter.Statuses) > 0 {
			db = db.Where("status IN ?", filter.Statuses)
		}
		if filter.Type != nil {
			db = db.Where("type = ?", *filter.Type)
		}
		if filter.CustomerID != "" {
			db = db.Where("customer_id = ?", filter.CustomerID)
		}
		if filter.IssuedFrom != nil {
			db = db.Where("issue_date >= ?", *filter.IssuedFrom)
		}
		if filter.IssuedTo != nil {
			db = db.Where("issue_date <= ?", *filter.IssuedTo)
		}
		if filter.DueBefore != nil {
			db = db.Where("due_date < ?", *filter.DueBefore)
		}
		return db
	}
}

// ExistsByNumber reports whether number is taken for the tenant
func (r *GormInvoiceRepository) ExistsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID)).
		Where("invoice_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

// ListTenantIDs returns every tenant owning at least one invoice
func (r *GormInvoiceRepository) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Distinct("tenant_id").
		Order("tenant_id").
		Pluck("tenant_id", &ids).Error
	return ids, err
}

// CountByStatus returns the number of invoices per status for a tenant
func (r *GormInvoiceRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Scopes(tenantScope(tenantID)).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// isUniqueViolation matches gorm's translated error and the raw driver
// messages of Postgres and SQLite.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

var _ invoicing.InvoiceRepository = (*GormInvoiceRepository)(nil)
