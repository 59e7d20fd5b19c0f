package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/google/uuid"
)

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, orderID)
	}
	return o, nil
}

func (t *tx) SetDriver(_ context.Context, orderID, driverID string) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", orders.ErrNotFound, orderID)
	}
	o.DriverID = driverID
	o.UpdatedAt = t.now()
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) UpdateStatus(ctx context.Context, orderID string, status orders.Status, inventoryHeld bool) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, orderID)
	}
	o.Status = status
	o.InventoryHeld = inventoryHeld
	o.UpdatedAt = t.now()
	t.st.orders[orderID] = o
	return o, nil
}

func (t *tx) AdjustStock(ctx context.Context, productID string, delta int) (orders.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return orders.InventoryRecord{}, err
	}
	r, ok := t.st.products[productID]
	if !ok {
		return orders.InventoryRecord{}, fmt.Errorf("%w: product %s", orders.ErrNotFound, productID)
	}
	if r.Stock+delta < 0 && !r.AllowBackorder {
		return orders.InventoryRecord{}, &orders.InsufficientStockError{Items: []orders.ShortItem{
			{ProductID: productID, Requested: -delta, Available: r.Stock},
		}}
	}
	r.Stock += delta
	r.Available = available(r.Stock, r.AllowBackorder)
	r.UpdatedAt = t.now()
	t.st.products[productID] = r
	return r, nil
}

func (t *tx) InventoryRecord(_ context.Context, productID string) (orders.InventoryRecord, error) {
	r, ok := t.st.products[productID]
	if !ok {
		return orders.InventoryRecord{}, fmt.Errorf("%w: product %s", orders.ErrNotFound, productID)
	}
	return r, nil
}

func (t *tx) PayoutByOrder(_ context.Context, orderID string) (orders.Payout, error) {
	id, ok := t.st.byOrder[orderID]
	if !ok {
		return orders.Payout{}, fmt.Errorf("%w: payout for order %s", orders.ErrNotFound, orderID)
	}
	return t.st.payouts[id], nil
}

func (t *tx) Payout(_ context.Context, payoutID string) (orders.Payout, error) {
	p, ok := t.st.payouts[payoutID]
	if !ok {
		return orders.Payout{}, fmt.Errorf("%w: payout %s", orders.ErrNotFound, payoutID)
	}
	return p, nil
}

func (t *tx) InsertPayout(_ context.Context, p orders.Payout) (orders.Payout, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := t.now()
	p.CreatedAt, p.UpdatedAt = now, now
	t.st.payouts[p.ID] = p
	t.st.byOrder[p.OrderID] = p.ID
	return p, nil
}

func (t *tx) UpdatePayoutStatus(_ context.Context, payoutID string, status orders.PayoutStatus, reason string) (orders.Payout, error) {
	p, ok := t.st.payouts[payoutID]
	if !ok {
		return orders.Payout{}, fmt.Errorf("%w: payout %s", orders.ErrNotFound, payoutID)
	}
	p.Status = status
	if reason != "" {
		p.Reason = reason
	}
	p.UpdatedAt = t.now()
	t.st.payouts[payoutID] = p
	return p, nil
}

func (t *tx) AppendAudit(ctx context.Context, e orders.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.st.audit = append(t.st.audit, e)
	return nil
}

func (t *tx) AuditEntries(_ context.Context, orderID string) ([]orders.AuditEntry, error) {
	out := []orders.AuditEntry{}
	for _, e := range t.st.audit {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}
