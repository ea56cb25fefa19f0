package invoicing

import (
	"context"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	Statuses   []InvoiceStatus
	Type       *InvoiceType
	CustomerID string
	IssuedFrom *time.Time
	IssuedTo   *time.Time
	DueBefore  *time.Time
}

// InvoiceRepository is the storage collaborator for invoices
type InvoiceRepository interface {
	// Create persists a new invoice. A (tenant, number) collision returns
	// a DuplicateInvoiceNumber error.
	Create(ctx context.Context, inv *Invoice) error

	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// FindByIDForUpdate loads the invoice with a row lock held until the
	// surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Invoice, error)

	// Update saves mutable fields; a stale Version returns ErrConcurrencyConflict
	Update(ctx context.Context, inv *Invoice) error

	List(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]Invoice, int64, error)

	ExistsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)

	// ListTenantIDs returns every tenant owning at least one invoice
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// PaymentRepository is the storage collaborator for payment records
type PaymentRepository interface {
	Create(ctx context.Context, p *PaymentRecord) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*PaymentRecord, error)
	ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]PaymentRecord, error)
	ListByInvoices(ctx context.Context, tenantID uuid.UUID, invoiceIDs []uuid.UUID) ([]PaymentRecord, error)
}
