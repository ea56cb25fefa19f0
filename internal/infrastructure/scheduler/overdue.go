package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantProvider lists the tenants to sweep
type TenantProvider interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// OverdueMarker moves a tenant's past-due invoices to OVERDUE
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, tenantID uuid.UUID, asOf time.Time) (int, error)
}

// overdueExecutor adapts an OverdueMarker to JobExecutor
type overdueExecutor struct {
	marker OverdueMarker
	logger *zap.Logger
}

func (e *overdueExecutor) Execute(ctx context.Context, job *Job) (int, error) {
	ctx, _ = logger.WithTenantID(ctx, e.logger, job.TenantID.String())
	return e.marker.MarkOverdue(ctx, job.TenantID, job.AsOf)
}

// OverdueScheduler sweeps every tenant for past-due invoices once per
// interval. One tenant failing does not affect the others.
type OverdueScheduler struct {
	interval time.Duration
	tenants  TenantProvider
	pool     *Scheduler
	now      func() time.Time
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewOverdueScheduler builds the scheduler from configuration
func NewOverdueScheduler(cfg config.SchedulerConfig, tenants TenantProvider, marker OverdueMarker, log *zap.Logger) *OverdueScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("overdue")

	poolCfg := DefaultConfig()
	if cfg.JobTimeout > 0 {
		poolCfg.JobTimeout = cfg.JobTimeout
	}
	interval := cfg.OverdueInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &OverdueScheduler{
		interval: interval,
		tenants:  tenants,
		pool:     NewScheduler(poolCfg, &overdueExecutor{marker: marker, logger: log}, log),
		now:      time.Now,
		logger:   log,
	}
}

// Start runs a sweep immediately and then once per interval until Stop or
// ctx is cancelled
func (o *OverdueScheduler) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.isRunning {
		return nil
	}
	if err := o.pool.Start(ctx); err != nil {
		return err
	}
	o.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wg.Add(1)
	go o.runLoop(ctx)

	o.logger.Info("Overdue scheduler started", zap.Duration("interval", o.interval))
	return nil
}

// Stop ends the loop and drains the worker pool
func (o *OverdueScheduler) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return nil
	}
	o.isRunning = false
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	return o.pool.Stop(ctx)
}

func (o *OverdueScheduler) runLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}

// Sweep queues one overdue job per tenant and returns how many were queued
func (o *OverdueScheduler) Sweep(ctx context.Context) int {
	tenantIDs, err := o.tenants.ListTenantIDs(ctx)
	if err != nil {
		o.logger.Error("Failed to list tenants for overdue sweep", zap.Error(err))
		return 0
	}

	asOf := o.now().UTC()
	queued := 0
	for _, tenantID := range tenantIDs {
		if err := o.pool.SubmitJob(NewJob(tenantID, asOf, o.pool.config.RetryAttempts)); err != nil {
			o.logger.Warn("Failed to queue overdue job",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}
	o.logger.Info("Overdue sweep queued",
		zap.Int("tenants", len(tenantIDs)),
		zap.Int("queued", queued),
		zap.Time("as_of", asOf),
	)
	return queued
}
