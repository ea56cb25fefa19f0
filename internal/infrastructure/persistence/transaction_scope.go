package persistence

import (
	"context"

	appinv "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Invoice, payment and (by default) counter writes commit or roll back together.
type GormTransactionScope struct {
	db      *gorm.DB
	counter invoicing.SerialCounterStore
}

// NewGormTransactionScope creates a new GormTransactionScope. A non-nil
// counter replaces the in-database serial counter; its increments are then
// outside the transaction.
func NewGormTransactionScope(db *gorm.DB, counter invoicing.SerialCounterStore) *GormTransactionScope {
	return &GormTransactionScope{db: db, counter: counter}
}

// Execute runs fn within a database transaction. A returned error rolls
// the transaction back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, counter: s.counter})
	})
}

type gormTransactionalRepositories struct {
	tx      *gorm.DB
	counter invoicing.SerialCounterStore
}

func (r *gormTransactionalRepositories) Invoices() invoicing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Payments() invoicing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

func (r *gormTransactionalRepositories) SerialCounter() invoicing.SerialCounterStore {
	if r.counter != nil {
		return r.counter
	}
	return NewGormSerialCounterRepository(r.tx)
}

var (
	_ appinv.TransactionScope          = (*GormTransactionScope)(nil)
	_ appinv.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
