package transition

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"go.uber.org/zap"
)

type AssignRequest struct {
	OrderID  string
	DriverID string
	Actor    string
	// Transition also moves the order to assigned in the same transaction.
	Transition bool
}

// AssignDriver attaches a driver to an order, optionally moving it to
// assigned atomically with the attachment.
func (o *Orchestrator) AssignDriver(ctx context.Context, req AssignRequest) (Result, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.DriverID = strings.TrimSpace(req.DriverID)
	req.Actor = strings.TrimSpace(req.Actor)
	if req.OrderID == "" || req.DriverID == "" {
		return Result{}, fmt.Errorf("%w: order id and driver id are required", orders.ErrValidation)
	}

	driver, err := o.store.Driver(ctx, req.DriverID)
	if err != nil {
		return Result{}, err
	}

	tr := Request{OrderID: req.OrderID, Status: orders.StatusAssigned, Actor: req.Actor}
	var ch change
	err = o.inTx(ctx, req.OrderID, func(ctx context.Context, tx Tx) error {
		order, err := tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.DriverID != driver.ID {
			if err := tx.SetDriver(ctx, order.ID, driver.ID); err != nil {
				return err
			}
			order.DriverID = driver.ID
			o.log.Info("driver attached",
				zap.String("order_id", order.ID),
				zap.String("driver_id", driver.ID),
				zap.String("actor", req.Actor),
			)
		}
		if !req.Transition {
			ch = change{order: order, from: order.Status}
			return nil
		}
		ch, err = o.apply(ctx, tx, order, tr, orders.OriginDriver, map[string]any{"driver_id": driver.ID})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if ch.changed {
		o.notifyChanged(ctx, ch, tr, orders.OriginDriver)
	}
	res := result(ch)
	if !req.Transition {
		res.Message = fmt.Sprintf("Driver %s attached to order %s", driver.Name, refOf(ch.order))
	}
	return res, nil
}

type PaymentRequest struct {
	OrderID       string
	PaymentStatus orders.PaymentStatus
	Reason        string
	Actor         string
}

// ChangePaymentStatus maps a payment-side status onto the order lifecycle.
func (o *Orchestrator) ChangePaymentStatus(ctx context.Context, req PaymentRequest) (Result, error) {
	target := req.PaymentStatus.OrderStatus()
	if target == "" {
		return Result{}, fmt.Errorf("%w: unknown payment status %q", orders.ErrValidation, req.PaymentStatus)
	}
	return o.transition(ctx, Request{
		OrderID: req.OrderID,
		Status:  target,
		Reason:  req.Reason,
		Actor:   req.Actor,
	}, orders.OriginPayment)
}

func refOf(o orders.Order) string {
	if o.ShortCode != "" {
		return o.ShortCode
	}
	return o.ID
}
