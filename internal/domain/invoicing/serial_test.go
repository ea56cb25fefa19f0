package invoicing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterKey struct {
	tenant uuid.UUID
	year   int
	series string
}

type fakeCounter struct {
	mu     sync.Mutex
	values map[counterKey]int64
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{values: map[counterKey]int64{}}
}

func (f *fakeCounter) AllocateNextSerial(_ context.Context, tenantID uuid.UUID, year int, series string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := counterKey{tenantID, year, series}
	f.values[k]++
	return f.values[k], nil
}

type fakeLookup map[string]bool

func (f fakeLookup) ExistsByNumber(_ context.Context, _ uuid.UUID, number string) (bool, error) {
	return f[number], nil
}

func TestParsePattern(t *testing.T) {
	fields := NumberFields{TenantAbbr: "ACME", TypeAbbr: "INV", Year: 2025, Month: 3, Sequence: 42, Series: "B"}

	tests := []struct {
		pattern string
		want    string
	}{
		{"standard", "ACME-2025-000042"},
		{"simple", "2025/0042"},
		{"with_type", "INV/2025/00042"},
		{"full", "ACME-INV-2025-03-00042"},
		{"{series}{year}-{seq}", "B2025-42"},
		{"{tenant_abbr}/{month}/{seq:3d}", "ACME/3/042"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p, err := ParsePattern(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Format(fields))
		})
	}
}

func TestParsePattern_SequenceWiderThanPadding(t *testing.T) {
	p, err := ParsePattern(PatternSimple)
	require.NoError(t, err)
	assert.Equal(t, "2025/123456", p.Format(NumberFields{Year: 2025, Sequence: 123456}))
}

func TestParsePattern_Errors(t *testing.T) {
	for _, pattern := range []string{
		"{customer}-{seq}",
		"{year}-{seq",
		"{year}",
		"{seq:06x}",
		"{tenant_abbr:04d}-{seq}",
	} {
		t.Run(pattern, func(t *testing.T) {
			_, err := ParsePattern(pattern)
			assert.Error(t, err)
		})
	}
}

func TestNewAllocator_RejectsUnknownField(t *testing.T) {
	_, err := NewAllocator(newFakeCounter(), nil, nil, AllocatorConfig{DefaultPattern: "{nope}-{seq}"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerialNumber))

	tenant := uuid.New()
	_, err = NewAllocator(newFakeCounter(), nil, nil, AllocatorConfig{
		TenantPatterns: map[uuid.UUID]string{tenant: "{bad}"},
	})
	assert.True(t, errors.Is(err, ErrSerialNumber))
}

func TestAllocator_AllocateNumber(t *testing.T) {
	tenant := uuid.New()
	counter := newFakeCounter()
	alloc, err := NewAllocator(counter, nil, StaticAbbreviations{tenant: "ACME"}, AllocatorConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	issue := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	n1, err := alloc.AllocateNumber(ctx, tenant, InvoiceTypeInvoice, issue, "")
	require.NoError(t, err)
	n2, err := alloc.AllocateNumber(ctx, tenant, InvoiceTypeInvoice, issue, "")
	require.NoError(t, err)
	assert.Equal(t, "ACME-2025-000001", n1)
	assert.Equal(t, "ACME-2025-000002", n2)

	// a new year starts a new counter
	n3, err := alloc.AllocateNumber(ctx, tenant, InvoiceTypeInvoice, issue.AddDate(1, 0, 0), "")
	require.NoError(t, err)
	assert.Equal(t, "ACME-2026-000001", n3)

	// the standard pattern does not print the series
	_, err = alloc.AllocateNumber(ctx, tenant, InvoiceTypeInvoice, issue, "B")
	assert.True(t, errors.Is(err, ErrInvalidInvoiceData))
	assert.NotContains(t, counter.values, counterKey{tenant, 2025, "B"}, "no counter consumed")
}

func TestAllocator_SeriesHasItsOwnCounter(t *testing.T) {
	tenant := uuid.New()
	alloc, err := NewAllocator(newFakeCounter(), nil, StaticAbbreviations{tenant: "ACME"}, AllocatorConfig{
		DefaultPattern: "{tenant_abbr}-{series}{year}-{seq:04d}",
	})
	require.NoError(t, err)

	ctx := context.Background()
	issue := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	a1, err := alloc.AllocateNumber(ctx, tenant, InvoiceTypeInvoice, issue, "A")
	require.NoError(t, err)
	b1, err := alloc.AllocateNumber(ctx, tenant, InvoiceTypeInvoice, issue, "B")
	require.NoError(t, err)
	a2, err := alloc.AllocateNumber(ctx, tenant, InvoiceTypeInvoice, issue, "A")
	require.NoError(t, err)

	assert.Equal(t, "ACME-A2025-0001", a1)
	assert.Equal(t, "ACME-B2025-0001", b1)
	assert.Equal(t, "ACME-A2025-0002", a2)
}

func TestAllocator_DefaultAbbreviationAndTenantPattern(t *testing.T) {
	plain, custom := uuid.New(), uuid.New()
	alloc, err := NewAllocator(newFakeCounter(), nil, nil, AllocatorConfig{
		DefaultPattern: "standard",
		TenantPatterns: map[uuid.UUID]string{custom: "with_type"},
	})
	require.NoError(t, err)

	ctx := context.Background()
	issue := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	n, err := alloc.AllocateNumber(ctx, plain, InvoiceTypeInvoice, issue, "")
	require.NoError(t, err)
	assert.Equal(t, "TENANT-2025-000001", n)

	n, err = alloc.AllocateNumber(ctx, custom, InvoiceTypeCreditNote, issue, "")
	require.NoError(t, err)
	assert.Equal(t, "CN/2025/00001", n)
}

func TestAllocator_StoreFailureIsAllocationConflict(t *testing.T) {
	counter := newFakeCounter()
	counter.err = fmt.Errorf("connection reset")
	alloc, err := NewAllocator(counter, nil, nil, AllocatorConfig{})
	require.NoError(t, err)

	_, err = alloc.AllocateNumber(context.Background(), uuid.New(), InvoiceTypeInvoice, time.Now(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocationConflict))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAllocator_ConcurrentAllocationHasNoDuplicatesOrGaps(t *testing.T) {
	tenant := uuid.New()
	alloc, err := NewAllocator(newFakeCounter(), nil, nil, AllocatorConfig{DefaultPattern: "simple"})
	require.NoError(t, err)

	const workers = 50
	const perWorker = 20
	issue := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	results := make(chan string, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n, err := alloc.AllocateNumber(context.Background(), tenant, InvoiceTypeInvoice, issue, "")
				if err == nil {
					results <- n
				}
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for n := range results {
		assert.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	require.Len(t, seen, workers*perWorker)
	for i := 1; i <= workers*perWorker; i++ {
		assert.True(t, seen[fmt.Sprintf("2025/%04d", i)], "missing sequence %d", i)
	}
}

func TestAllocator_ValidateNumber(t *testing.T) {
	alloc, err := NewAllocator(newFakeCounter(), fakeLookup{"TENANT-2025-000001": true}, nil, AllocatorConfig{})
	require.NoError(t, err)

	ok, err := alloc.ValidateNumber(context.Background(), uuid.New(), "TENANT-2025-000001")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = alloc.ValidateNumber(context.Background(), uuid.New(), "TENANT-2025-000002")
	require.NoError(t, err)
	assert.True(t, ok)
}
