package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Deliverer performs one email delivery synchronously
type Deliverer interface {
	DeliverEmail(ctx context.Context, tenantID, invoiceID uuid.UUID, req invoicing.DeliveryRequest) error
}

// Worker consumes delivery tasks
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker creates a worker processing TaskDeliverInvoice with deliverer
func NewWorker(redisOpt asynq.RedisConnOpt, cfg config.QueueConfig, deliverer Deliverer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("delivery_worker")
	onError := asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Warn("Delivery task failed",
			zap.String("type", task.Type()),
			zap.Int("retry", retried),
			zap.Int("max_retry", maxRetry),
			zap.Error(err),
		)
	})
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:  cfg.Concurrency,
		Queues:       map[string]int{QueueInvoicing: 1},
		Logger:       logger.Sugar(),
		ErrorHandler: onError,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDeliverInvoice, NewDeliverHandler(deliverer, logger))
	return &Worker{server: srv, mux: mux, logger: logger}
}

// Run processes tasks until ctx is canceled
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return nil
	case err := <-errCh:
		return err
	}
}

// NewDeliverHandler returns the asynq handler of TaskDeliverInvoice.
// Failures that a retry cannot fix skip the retry queue.
func NewDeliverHandler(deliverer Deliverer, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseDeliverPayload(task.Payload())
		if err != nil {
			return fmt.Errorf("decode %s: %v: %w", TaskDeliverInvoice, err, asynq.SkipRetry)
		}

		err = deliverer.DeliverEmail(ctx, payload.TenantID, payload.InvoiceID, payload.Request)
		if err == nil {
			logger.Info("Queued invoice delivered",
				zap.String("tenant_id", payload.TenantID.String()),
				zap.String("invoice_id", payload.InvoiceID.String()),
			)
			return nil
		}
		if permanent(err) {
			logger.Warn("Dropping undeliverable invoice",
				zap.String("tenant_id", payload.TenantID.String()),
				zap.String("invoice_id", payload.InvoiceID.String()),
				zap.Error(err),
			)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

func permanent(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrInvalidState) ||
		errors.Is(err, invoicing.ErrInvalidInvoiceData) ||
		errors.Is(err, invoicing.ErrEInvoiceGeneration)
}
