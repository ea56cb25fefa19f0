package invoicing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// In-memory repositories
// =============================================================================

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]invoicing.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: map[uuid.UUID]invoicing.Invoice{}}
}

func (r *memInvoiceRepo) store(inv *invoicing.Invoice) {
	cp := *inv
	cp.ClearDomainEvents()
	cp.Metadata = copyMap(inv.Metadata)
	r.invoices[inv.ID] = cp
}

func (r *memInvoiceRepo) load(inv invoicing.Invoice) *invoicing.Invoice {
	inv.Metadata = copyMap(inv.Metadata)
	return &inv
}

func copyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (r *memInvoiceRepo) Create(_ context.Context, inv *invoicing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.invoices {
		if existing.TenantID == inv.TenantID && existing.InvoiceNumber == inv.InvoiceNumber {
			return invoicing.NewDuplicateInvoiceNumberError(inv.InvoiceNumber)
		}
	}
	r.store(inv)
	return nil
}

func (r *memInvoiceRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, invoicing.NewInvoiceNotFoundError(id.String())
	}
	return r.load(inv), nil
}

func (r *memInvoiceRepo) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.FindByID(ctx, tenantID, id)
}

func (r *memInvoiceRepo) FindByNumber(_ context.Context, tenantID uuid.UUID, number string) (*invoicing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.TenantID == tenantID && inv.InvoiceNumber == number {
			return r.load(inv), nil
		}
	}
	return nil, invoicing.NewInvoiceNotFoundError(number)
}

func (r *memInvoiceRepo) Update(_ context.Context, inv *invoicing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.ID]; !ok {
		return invoicing.NewInvoiceNotFoundError(inv.ID.String())
	}
	r.store(inv)
	return nil
}

func (r *memInvoiceRepo) List(_ context.Context, tenantID uuid.UUID, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []invoicing.Invoice
	for _, inv := range r.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, inv.Status) {
			continue
		}
		if filter.DueBefore != nil && !inv.DueDate().Before(*filter.DueBefore) {
			continue
		}
		if filter.Type != nil && inv.Type != *filter.Type {
			continue
		}
		if filter.CustomerID != "" && inv.Customer.ID != filter.CustomerID {
			continue
		}
		matched = append(matched, *r.load(inv))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].InvoiceNumber < matched[j].InvoiceNumber })
	total := int64(len(matched))
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func containsStatus(list []invoicing.InvoiceStatus, s invoicing.InvoiceStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func (r *memInvoiceRepo) ExistsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	_, err := r.FindByNumber(ctx, tenantID, number)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *memInvoiceRepo) ListTenantIDs(context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, inv := range r.invoices {
		if !seen[inv.TenantID] {
			seen[inv.TenantID] = true
			ids = append(ids, inv.TenantID)
		}
	}
	return ids, nil
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments []invoicing.PaymentRecord
}

func (r *memPaymentRepo) Create(_ context.Context, p *invoicing.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, *p)
	return nil
}

func (r *memPaymentRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*invoicing.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID == id && p.TenantID == tenantID {
			cp := p
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPaymentRepo) ListByInvoice(_ context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []invoicing.PaymentRecord
	for _, p := range r.payments {
		if p.TenantID == tenantID && p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) ListByInvoices(ctx context.Context, tenantID uuid.UUID, invoiceIDs []uuid.UUID) ([]invoicing.PaymentRecord, error) {
	var out []invoicing.PaymentRecord
	for _, id := range invoiceIDs {
		ps, _ := r.ListByInvoice(ctx, tenantID, id)
		out = append(out, ps...)
	}
	return out, nil
}

type counterKey struct {
	tenant uuid.UUID
	year   int
	series string
}

// memCounter fails the first failures calls, then counts
type memCounter struct {
	mu       sync.Mutex
	values   map[counterKey]int64
	failures int
	calls    int
}

func newMemCounter() *memCounter {
	return &memCounter{values: map[counterKey]int64{}}
}

func (c *memCounter) AllocateNextSerial(_ context.Context, tenantID uuid.UUID, year int, series string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		return 0, errors.New("could not serialize access")
	}
	k := counterKey{tenantID, year, series}
	c.values[k]++
	return c.values[k], nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: map[string]string{}}
}

func (m *memIdempotency) Reserve(_ context.Context, key, value string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[key]; ok {
		return existing, false, nil
	}
	m.keys[key] = value
	return "", true, nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memIdempotency) Close() error { return nil }

// =============================================================================
// Mocks
// =============================================================================

// MockEventPublisher records published events
type MockEventPublisher struct {
	mock.Mock
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	m.events = append(m.events, events...)
	m.mu.Unlock()
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockEventPublisher) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.EventType()
	}
	return types
}

// MockInvoiceRepository is a testify mock of invoicing.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, inv *invoicing.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Update(ctx context.Context, inv *invoicing.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepository) List(ctx context.Context, tenantID uuid.UUID, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]invoicing.Invoice), args.Get(1).(int64), args.Error(2)
}

func (m *MockInvoiceRepository) ExistsByNumber(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	args := m.Called(ctx, tenantID, number)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

var (
	_ invoicing.InvoiceRepository  = (*memInvoiceRepo)(nil)
	_ invoicing.InvoiceRepository  = (*MockInvoiceRepository)(nil)
	_ invoicing.PaymentRepository  = (*memPaymentRepo)(nil)
	_ invoicing.SerialCounterStore = (*memCounter)(nil)
	_ shared.IdempotencyStore      = (*memIdempotency)(nil)
	_ shared.EventPublisher        = (*MockEventPublisher)(nil)
)
