// Package transition moves orders through their lifecycle. Every status change
// goes through one path: validate, adjust inventory, settle payouts, audit,
// persist, then notify once the transaction has committed.
package transition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/gift-orders/internal/audit"
	"github.com/ariefcatur/gift-orders/internal/inventory"
	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/notify"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/payouts"
	"go.uber.org/zap"
)

const (
	defaultNotifyTimeout   = 2 * time.Second
	defaultBulkConcurrency = 4
	defaultBulkMaxOrders   = 200
)

type Deps struct {
	Store    Store
	Ledger   *inventory.Ledger
	Payouts  *payouts.Manager
	Audit    *audit.Log
	Notifier notify.Trigger
	Logger   *zap.Logger

	NotifyTimeout   time.Duration
	BulkConcurrency int
	BulkMaxOrders   int
}

type Orchestrator struct {
	store    Store
	ledger   *inventory.Ledger
	payouts  *payouts.Manager
	audit    *audit.Log
	notifier notify.Trigger
	log      *zap.Logger

	notifyTimeout   time.Duration
	bulkConcurrency int
	bulkMaxOrders   int
}

func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("transition: store is required")
	}
	if deps.Payouts == nil {
		return nil, errors.New("transition: payout manager is required")
	}
	log := logging.OrNop(deps.Logger)

	o := &Orchestrator{
		store:           deps.Store,
		ledger:          deps.Ledger,
		payouts:         deps.Payouts,
		audit:           deps.Audit,
		notifier:        deps.Notifier,
		log:             log,
		notifyTimeout:   deps.NotifyTimeout,
		bulkConcurrency: deps.BulkConcurrency,
		bulkMaxOrders:   deps.BulkMaxOrders,
	}
	if o.ledger == nil {
		o.ledger = inventory.NewLedger(log)
	}
	if o.audit == nil {
		o.audit = audit.New(audit.Options{Logger: log})
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.notifyTimeout <= 0 {
		o.notifyTimeout = defaultNotifyTimeout
	}
	if o.bulkConcurrency <= 0 {
		o.bulkConcurrency = defaultBulkConcurrency
	}
	if o.bulkMaxOrders <= 0 {
		o.bulkMaxOrders = defaultBulkMaxOrders
	}
	return o, nil
}

type Request struct {
	OrderID string
	Status  orders.Status
	Reason  string
	Actor   string
}

type Result struct {
	Order   orders.Order `json:"order"`
	Changed bool         `json:"changed"`
	Message string       `json:"message"`
}

// change is what one committed unit of work did to an order.
type change struct {
	order   orders.Order
	from    orders.Status
	changed bool
}

// Transition applies one status change to one order.
func (o *Orchestrator) Transition(ctx context.Context, req Request) (Result, error) {
	return o.transition(ctx, req, orders.OriginSingle)
}

func (o *Orchestrator) transition(ctx context.Context, req Request, origin orders.Origin) (Result, error) {
	req, err := normalize(req)
	if err != nil {
		return Result{}, err
	}

	var ch change
	err = o.inTx(ctx, req.OrderID, func(ctx context.Context, tx Tx) error {
		order, err := tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		ch, err = o.apply(ctx, tx, order, req, origin, nil)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if ch.changed {
		o.notifyChanged(ctx, ch, req, origin)
	}
	return result(ch), nil
}

func normalize(req Request) (Request, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Actor = strings.TrimSpace(req.Actor)
	if req.OrderID == "" {
		return req, fmt.Errorf("%w: order id is required", orders.ErrValidation)
	}
	if !req.Status.Valid() {
		return req, fmt.Errorf("%w: unknown status %q", orders.ErrValidation, req.Status)
	}
	return req, nil
}

// apply runs validation and every side effect for one locked order. It must
// be called inside the order's transaction.
func (o *Orchestrator) apply(ctx context.Context, tx Tx, order orders.Order, req Request, origin orders.Origin, meta map[string]any) (change, error) {
	from, to := order.Status, req.Status
	if from == to {
		return change{order: order, from: from}, nil
	}
	if !orders.CanTransition(from, to) {
		return change{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, from, to)
	}
	if orders.RequiresReason(to) && req.Reason == "" {
		return change{}, fmt.Errorf("%w: reason is required for %s", orders.ErrValidation, to)
	}
	if to == orders.StatusAssigned && !order.HasDriver() {
		return change{}, fmt.Errorf("%w: order %s has no driver", orders.ErrPreconditionFailed, order.ID)
	}

	held := order.InventoryHeld

	// 1. stock leaves the shelf once, when the order is paid
	if to == orders.StatusPaid && !held {
		if _, err := o.ledger.Decrement(ctx, tx, order.Items); err != nil {
			return change{}, err
		}
		held = true
	}

	// 2. driver payout
	if to == orders.StatusAssigned && from == orders.StatusPaid {
		if _, _, err := o.payouts.CreateForOrder(ctx, tx, order); err != nil {
			return change{}, err
		}
	}

	// 3. refunds and cancellations give stock back and stop the payout
	if to == orders.StatusRefunded || to == orders.StatusCanceled {
		if held {
			if _, err := o.ledger.Restock(ctx, tx, order.Items); err != nil {
				return change{}, err
			}
			held = false
		}
		if err := o.stopPayout(ctx, tx, order.ID, from, req.Reason); err != nil {
			return change{}, err
		}
	}

	// 4. audit, best-effort
	md := map[string]any{"origin": string(origin)}
	for k, v := range meta {
		md[k] = v
	}
	o.audit.Record(ctx, tx, orders.AuditEntry{
		OrderID:   order.ID,
		OldStatus: from,
		NewStatus: to,
		Reason:    req.Reason,
		Actor:     req.Actor,
		Metadata:  md,
	})

	// 5. persist
	updated, err := tx.UpdateStatus(ctx, order.ID, to, held)
	if err != nil {
		return change{}, fmt.Errorf("%w: update status of %s: %v", orders.ErrPersistence, order.ID, err)
	}
	o.log.Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", req.Actor),
		zap.String("origin", string(origin)),
	)
	return change{order: updated, from: from, changed: true}, nil
}

// stopPayout reverts an open payout. After delivery the payout is blocked for
// manual review instead.
func (o *Orchestrator) stopPayout(ctx context.Context, tx Tx, orderID string, from orders.Status, reason string) error {
	p, err := tx.PayoutByOrder(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.Status.Open() {
		return nil
	}
	next := orders.PayoutReverted
	if from == orders.StatusDelivered {
		next = orders.PayoutBlocked
	}
	_, err = o.payouts.SetStatus(ctx, tx, p.ID, next, reason)
	return err
}

// inTx runs fn in the store's transaction. Errors from fn come back as they
// are; a begin or commit failure on a live context means the status was not
// persisted.
func (o *Orchestrator) inTx(ctx context.Context, orderID string, fn func(ctx context.Context, tx Tx) error) error {
	var fnErr error
	err := o.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		fnErr = fn(ctx, tx)
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr == nil && ctx.Err() == nil {
		err = fmt.Errorf("%w: commit: %v", orders.ErrPersistence, err)
	}
	if errors.Is(err, orders.ErrPersistence) {
		o.log.Error("order persistence failed",
			zap.String("order_id", orderID),
			zap.Bool("critical", true),
			zap.Error(err),
		)
	}
	return err
}

func (o *Orchestrator) notifyChanged(ctx context.Context, ch change, req Request, origin orders.Origin) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.notifyTimeout)
	defer cancel()

	err := o.notifier.StatusChanged(ctx, orders.StatusChangedPayload{
		OrderID:   ch.order.ID,
		ShortCode: ch.order.ShortCode,
		OldStatus: ch.from,
		NewStatus: ch.order.Status,
		Reason:    req.Reason,
		Actor:     req.Actor,
		Origin:    origin,
	})
	if err != nil {
		o.log.Warn("status notification failed", zap.String("order_id", ch.order.ID), zap.Error(err))
	}
}

func result(ch change) Result {
	ref := ch.order.ShortCode
	if ref == "" {
		ref = ch.order.ID
	}
	msg := fmt.Sprintf("Order %s is already %s", ref, ch.order.Status)
	if ch.changed {
		msg = fmt.Sprintf("Order %s moved from %s to %s", ref, ch.from, ch.order.Status)
	}
	return Result{Order: ch.order, Changed: ch.changed, Message: msg}
}
