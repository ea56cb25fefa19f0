package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueInvoicing is the asynq queue carrying invoice deliveries
	QueueInvoicing = "invoicing"
	// TaskDeliverInvoice emails an invoice in the background
	TaskDeliverInvoice = "invoice:deliver"
)

// DeliverPayload is the body of a TaskDeliverInvoice task
type DeliverPayload struct {
	TenantID  uuid.UUID                 `json:"tenant_id"`
	InvoiceID uuid.UUID                 `json:"invoice_id"`
	Request   invoicing.DeliveryRequest `json:"request"`
}

// NewDeliverTask builds a delivery task on the invoicing queue
func NewDeliverTask(payload DeliverPayload, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueInvoicing)}, opts...)
	return asynq.NewTask(TaskDeliverInvoice, body, opts...), nil
}

// ParseDeliverPayload decodes the body of a TaskDeliverInvoice task
func ParseDeliverPayload(data []byte) (DeliverPayload, error) {
	var p DeliverPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return DeliverPayload{}, err
	}
	if p.TenantID == uuid.Nil || p.InvoiceID == uuid.Nil {
		return DeliverPayload{}, fmt.Errorf("payload without tenant or invoice id")
	}
	return p, nil
}

// RedisOpt returns the asynq connection options of cfg
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB}
}

// AsynqQueue implements invoicing.DeliveryQueue on an asynq client
type AsynqQueue struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

// NewAsynqQueue creates a new AsynqQueue
func NewAsynqQueue(client *asynq.Client, maxRetry int, timeout time.Duration) *AsynqQueue {
	return &AsynqQueue{client: client, maxRetry: maxRetry, timeout: timeout}
}

// EnqueueEmail implements invoicing.DeliveryQueue
func (q *AsynqQueue) EnqueueEmail(ctx context.Context, tenantID, invoiceID uuid.UUID, req invoicing.DeliveryRequest) (string, error) {
	opts := []asynq.Option{asynq.MaxRetry(q.maxRetry)}
	if q.timeout > 0 {
		opts = append(opts, asynq.Timeout(q.timeout))
	}
	task, err := NewDeliverTask(DeliverPayload{TenantID: tenantID, InvoiceID: invoiceID, Request: req}, opts...)
	if err != nil {
		return "", err
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TaskDeliverInvoice, err)
	}
	return info.ID, nil
}

// Close releases the client connection
func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

var _ invoicing.DeliveryQueue = (*AsynqQueue)(nil)
