package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMetrics(t *testing.T) (*telemetry.InvoiceMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := telemetry.NewInvoiceMetrics(mp.Meter("test"), nil)
	require.NoError(t, err)
	return m, reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestNewInvoiceMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewInvoiceMetrics(nil, nil)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestInvoiceMetrics_Counters(t *testing.T) {
	m, reader := newManualMetrics(t)
	ctx := context.Background()
	tenant := uuid.New()

	m.RecordInvoiceIssued(ctx, tenant, "invoice", "EUR", decimal.RequireFromString("1515.00"))
	m.RecordInvoiceIssued(ctx, tenant, "credit_note", "EUR", decimal.RequireFromString("100"))
	m.RecordPayment(ctx, tenant, "bank_transfer")
	m.RecordAllocation(ctx, tenant, nil)
	m.RecordAllocation(ctx, tenant, nil)
	m.RecordAllocation(ctx, tenant, errors.New("conflict"))
	m.RecordOverdue(ctx, tenant, 3)
	m.RecordOverdue(ctx, tenant, 0)
	m.RecordDocument(ctx, "pdf", 150*time.Millisecond, nil)

	assert.Equal(t, int64(2), collectSum(t, reader, "invoicing_invoices_issued_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "invoicing_payments_recorded_total"))
	assert.Equal(t, int64(2), collectSum(t, reader, "invoicing_serial_allocations_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "invoicing_serial_allocation_failures_total"))
	assert.Equal(t, int64(3), collectSum(t, reader, "invoicing_invoices_overdue_total"))
	assert.Equal(t, int64(1), collectSum(t, reader, "invoicing_documents_rendered_total"))
}

func TestInvoiceMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *telemetry.InvoiceMetrics
	assert.NotPanics(t, func() {
		ctx := context.Background()
		m.RecordInvoiceIssued(ctx, uuid.New(), "invoice", "EUR", decimal.Zero)
		m.RecordPayment(ctx, uuid.New(), "cash")
		m.RecordAllocation(ctx, uuid.New(), nil)
		m.RecordOverdue(ctx, uuid.New(), 1)
		m.RecordDocument(ctx, "pdf", time.Second, nil)
		m.StartPeriodicCollection(ctx, nil, time.Second)
		m.Stop()
	})
}

type statsProvider struct {
	mu      sync.Mutex
	tenants []uuid.UUID
	calls   int
}

func (p *statsProvider) ListTenantIDs(context.Context) ([]uuid.UUID, error) {
	return p.tenants, nil
}

func (p *statsProvider) CountByStatus(context.Context, uuid.UUID) (map[string]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return map[string]int64{"issued": 2, "overdue": 1}, nil
}

func (p *statsProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestInvoiceMetrics_PeriodicCollection(t *testing.T) {
	m, reader := newManualMetrics(t)
	provider := &statsProvider{tenants: []uuid.UUID{uuid.New()}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartPeriodicCollection(ctx, provider, time.Hour)
	defer m.Stop()

	require.Eventually(t, func() bool { return provider.callCount() >= 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(3), collectSum(t, reader, "invoicing_invoices_by_status"))
}

func TestInvoiceMetrics_NoopMeter(t *testing.T) {
	m, err := telemetry.NewInvoiceMetrics(noop.NewMeterProvider().Meter("test"), nil)
	require.NoError(t, err)
	m.RecordPayment(context.Background(), uuid.New(), "card")
	m.Stop()
	m.Stop()
}
