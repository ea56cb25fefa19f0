package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDeliverer struct {
	err   error
	calls []DeliverPayload
}

func (f *fakeDeliverer) DeliverEmail(_ context.Context, tenantID, invoiceID uuid.UUID, req invoicing.DeliveryRequest) error {
	f.calls = append(f.calls, DeliverPayload{TenantID: tenantID, InvoiceID: invoiceID, Request: req})
	return f.err
}

func samplePayload() DeliverPayload {
	return DeliverPayload{
		TenantID:  uuid.New(),
		InvoiceID: uuid.New(),
		Request: invoicing.DeliveryRequest{
			To:        []string{"cliente@example.com"},
			AttachXML: true,
			XMLFormat: invoicing.EInvoiceFormatFatturaPA,
		},
	}
}

func TestDeliverTask_Payload(t *testing.T) {
	payload := samplePayload()
	task, err := NewDeliverTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TaskDeliverInvoice, task.Type())

	decoded, err := ParseDeliverPayload(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	_, err = ParseDeliverPayload([]byte(`{"tenant_id":"` + uuid.NewString() + `"}`))
	assert.Error(t, err)
	_, err = ParseDeliverPayload([]byte("{"))
	assert.Error(t, err)
}

func TestDeliverHandler(t *testing.T) {
	ctx := context.Background()
	payload := samplePayload()
	task, err := NewDeliverTask(payload)
	require.NoError(t, err)

	t.Run("delivers", func(t *testing.T) {
		d := &fakeDeliverer{}
		require.NoError(t, NewDeliverHandler(d, zap.NewNop())(ctx, task))
		require.Len(t, d.calls, 1)
		assert.Equal(t, payload, d.calls[0])
	})

	t.Run("permanent failures skip retry", func(t *testing.T) {
		for _, cause := range []error{
			invoicing.NewInvoiceNotFoundError(payload.InvoiceID.String()),
			invoicing.NewInvoiceStateError(payload.InvoiceID, invoicing.InvoiceStatusCanceled, "canceled"),
			invoicing.NewInvalidInvoiceDataError("to", "no recipient"),
		} {
			err := NewDeliverHandler(&fakeDeliverer{err: cause}, zap.NewNop())(ctx, task)
			assert.ErrorIs(t, err, asynq.SkipRetry)
			assert.ErrorIs(t, err, cause)
		}
	})

	t.Run("transient failures retry", func(t *testing.T) {
		cause := invoicing.NewDeliveryError(payload.InvoiceID, "email", errors.New("connection reset"))
		err := NewDeliverHandler(&fakeDeliverer{err: cause}, zap.NewNop())(ctx, task)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		d := &fakeDeliverer{}
		err := NewDeliverHandler(d, zap.NewNop())(ctx, asynq.NewTask(TaskDeliverInvoice, []byte("garbage")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Empty(t, d.calls)
	})
}

func TestAsynqQueue_EnqueueEmail(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	queue := NewAsynqQueue(client, 3, time.Minute)
	t.Cleanup(func() { _ = queue.Close() })

	payload := samplePayload()
	id, err := queue.EnqueueEmail(context.Background(), payload.TenantID, payload.InvoiceID, payload.Request)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.True(t, mr.Exists("asynq:{"+QueueInvoicing+"}:t:"+id))
	pending, err := mr.List("asynq:{" + QueueInvoicing + "}:pending")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, pending)
}

func TestAsynqQueue_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr(), DialTimeout: 200 * time.Millisecond})
	queue := NewAsynqQueue(client, 3, 0)
	t.Cleanup(func() { _ = queue.Close() })
	mr.Close()

	payload := samplePayload()
	_, err := queue.EnqueueEmail(context.Background(), payload.TenantID, payload.InvoiceID, payload.Request)
	assert.Error(t, err)
}
