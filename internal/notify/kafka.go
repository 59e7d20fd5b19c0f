package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/gift-orders/internal/kafka"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// KafkaTrigger publishes envelopes: one per status change, one per batch.
type KafkaTrigger struct {
	Changes  Publisher // order.status.changed
	Batches  Publisher // order.status.batch
	Producer string
	Clock    func() time.Time
}

func (k *KafkaTrigger) StatusChanged(ctx context.Context, p orders.StatusChangedPayload) error {
	env, err := k.envelope(ctx, orders.EventStatusChanged, p.OrderID, p)
	if err != nil {
		return err
	}
	return k.Changes.Publish(ctx, orders.PartitionKey(p.OrderID), kafkax.MustMarshal(env),
		kafkax.EventHeaders(orders.EventStatusChanged, env.EventVersion)...)
}

func (k *KafkaTrigger) BatchCompleted(ctx context.Context, p orders.BatchCompletedPayload) error {
	env, err := k.envelope(ctx, orders.EventBatchCompleted, p.BatchID, p)
	if err != nil {
		return err
	}
	return k.Batches.Publish(ctx, []byte(p.BatchID), kafkax.MustMarshal(env),
		kafkax.EventHeaders(orders.EventBatchCompleted, env.EventVersion)...)
}

func (k *KafkaTrigger) envelope(ctx context.Context, eventType, correlationID string, payload any) (orders.Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return orders.Envelope{}, fmt.Errorf("notify: encode %s: %w", eventType, err)
	}
	now := time.Now
	if k.Clock != nil {
		now = k.Clock
	}
	return orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      k.Producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}
