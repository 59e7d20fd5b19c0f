package transition

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/gift-orders/internal/inventory"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"go.uber.org/zap"
)

func (o *Orchestrator) Order(ctx context.Context, orderID string) (orders.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return orders.Order{}, fmt.Errorf("%w: order id is required", orders.ErrValidation)
	}
	return o.store.Order(ctx, orderID)
}

// History returns the audit trail of an order, oldest first.
func (o *Orchestrator) History(ctx context.Context, orderID string) ([]orders.AuditEntry, error) {
	if _, err := o.Order(ctx, orderID); err != nil {
		return nil, err
	}
	var out []orders.AuditEntry
	err := o.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = o.audit.List(ctx, tx, strings.TrimSpace(orderID))
		return err
	})
	return out, err
}

// MarkPayoutPaid settles a payout. It is never a side effect of a status change.
func (o *Orchestrator) MarkPayoutPaid(ctx context.Context, payoutID, actor string) (orders.Payout, error) {
	payoutID = strings.TrimSpace(payoutID)
	if payoutID == "" {
		return orders.Payout{}, fmt.Errorf("%w: payout id is required", orders.ErrValidation)
	}
	var p orders.Payout
	err := o.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		p, err = o.payouts.MarkPaid(ctx, tx, payoutID)
		return err
	})
	if err != nil {
		return orders.Payout{}, err
	}
	o.log.Info("payout marked paid", zap.String("payout_id", p.ID), zap.String("actor", actor))
	return p, nil
}

// AdjustInventory is the manual stock correction used by the dashboard.
func (o *Orchestrator) AdjustInventory(ctx context.Context, productID string, delta int, actor string) (inventory.Adjustment, error) {
	var adj inventory.Adjustment
	err := o.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		adj, err = o.ledger.Adjust(ctx, tx, productID, delta)
		return err
	})
	if err != nil {
		return inventory.Adjustment{}, err
	}
	o.log.Info("inventory adjusted",
		zap.String("product_id", adj.ProductID),
		zap.Int("delta", delta),
		zap.Int("stock", adj.NewStock),
		zap.String("actor", actor),
	)
	return adj, nil
}
