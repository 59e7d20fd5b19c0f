// Package notify carries status-change events out of the orchestrator.
// Delivery to operators (Discord, SMS, email) happens downstream of the
// Kafka topics; triggers only have to hand the event off quickly.
package notify

import (
	"context"

	"github.com/ariefcatur/gift-orders/internal/orders"
)

type Trigger interface {
	StatusChanged(ctx context.Context, p orders.StatusChangedPayload) error
	BatchCompleted(ctx context.Context, p orders.BatchCompletedPayload) error
}

type Nop struct{}

func (Nop) StatusChanged(context.Context, orders.StatusChangedPayload) error   { return nil }
func (Nop) BatchCompleted(context.Context, orders.BatchCompletedPayload) error { return nil }
