package invoicing

import (
	"context"

	"github.com/erp/invoicing/internal/domain/invoicing"
)

// TransactionScope runs a unit of work against repositories that share one
// database transaction. A returned error rolls everything back, including
// the serial counter increment when the counter lives in the same database.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes the repositories bound to the current transaction
type TransactionalRepositories interface {
	Invoices() invoicing.InvoiceRepository
	Payments() invoicing.PaymentRepository
	// SerialCounter is the counter store allocation must use inside the
	// transaction. For out-of-database backends it is that backend.
	SerialCounter() invoicing.SerialCounterStore
}

// NoOpTransactionScope hands out fixed repositories without a transaction.
// It is meant for tests and in-memory wiring.
type NoOpTransactionScope struct {
	invoices invoicing.InvoiceRepository
	payments invoicing.PaymentRepository
	counter  invoicing.SerialCounterStore
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(
	invoices invoicing.InvoiceRepository,
	payments invoicing.PaymentRepository,
	counter invoicing.SerialCounterStore,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{invoices: invoices, payments: payments, counter: counter}
}

// Execute calls fn directly
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) Invoices() invoicing.InvoiceRepository      { return s.invoices }
func (s *NoOpTransactionScope) Payments() invoicing.PaymentRepository      { return s.payments }
func (s *NoOpTransactionScope) SerialCounter() invoicing.SerialCounterStore { return s.counter }

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
