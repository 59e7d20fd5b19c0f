package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"go.uber.org/zap"
)

// Store persists payouts. PayoutByOrder returns orders.ErrNotFound when the
// order has no payout; Payout returns it for an unknown id.
type Store interface {
	PayoutByOrder(ctx context.Context, orderID string) (orders.Payout, error)
	Payout(ctx context.Context, payoutID string) (orders.Payout, error)
	InsertPayout(ctx context.Context, p orders.Payout) (orders.Payout, error)
	UpdatePayoutStatus(ctx context.Context, payoutID string, status orders.PayoutStatus, reason string) (orders.Payout, error)
}

type Manager struct {
	policy Policy
	log    *zap.Logger
}

func NewManager(policy Policy, log *zap.Logger) *Manager {
	return &Manager{policy: policy, log: logging.OrNop(log)}
}

// Create queues a payout for the order's driver. When the order already has a
// payout it is returned unchanged and created is false.
func (m *Manager) Create(ctx context.Context, s Store, orderID, driverID string, amountCents int64) (p orders.Payout, created bool, err error) {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(driverID) == "" {
		return orders.Payout{}, false, fmt.Errorf("%w: payout needs an order and a driver", orders.ErrValidation)
	}
	if amountCents < 0 {
		return orders.Payout{}, false, fmt.Errorf("%w: negative payout amount %d", orders.ErrValidation, amountCents)
	}

	existing, err := s.PayoutByOrder(ctx, orderID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, orders.ErrNotFound):
		return orders.Payout{}, false, err
	}

	p, err = s.InsertPayout(ctx, orders.Payout{
		OrderID:     orderID,
		DriverID:    driverID,
		AmountCents: amountCents,
		Status:      orders.PayoutQueued,
	})
	if err != nil {
		return orders.Payout{}, false, err
	}
	m.log.Info("payout queued",
		zap.String("payout_id", p.ID),
		zap.String("order_id", orderID),
		zap.String("driver_id", driverID),
		zap.Int64("amount_cents", amountCents),
	)
	return p, true, nil
}

// CreateForOrder applies the configured policy to o.
func (m *Manager) CreateForOrder(ctx context.Context, s Store, o orders.Order) (orders.Payout, bool, error) {
	amount, err := m.policy.Amount(o)
	if err != nil {
		return orders.Payout{}, false, err
	}
	return m.Create(ctx, s, o.ID, o.DriverID, amount)
}

// SetStatus only checks that the payout exists; business rules belong to the caller.
func (m *Manager) SetStatus(ctx context.Context, s Store, payoutID string, status orders.PayoutStatus, reason string) (orders.Payout, error) {
	if !status.Valid() {
		return orders.Payout{}, fmt.Errorf("%w: unknown payout status %q", orders.ErrValidation, status)
	}
	if _, err := s.Payout(ctx, payoutID); err != nil {
		return orders.Payout{}, err
	}
	p, err := s.UpdatePayoutStatus(ctx, payoutID, status, strings.TrimSpace(reason))
	if err != nil {
		return orders.Payout{}, err
	}
	m.log.Info("payout status changed",
		zap.String("payout_id", payoutID),
		zap.String("order_id", p.OrderID),
		zap.String("status", string(status)),
	)
	return p, nil
}

// MarkPaid is the explicit admin settlement action. Blocked and reverted
// payouts must be reviewed and re-queued first.
func (m *Manager) MarkPaid(ctx context.Context, s Store, payoutID string) (orders.Payout, error) {
	p, err := s.Payout(ctx, payoutID)
	if err != nil {
		return orders.Payout{}, err
	}
	if p.Status == orders.PayoutPaid {
		return p, nil
	}
	if !p.Status.Open() {
		return orders.Payout{}, fmt.Errorf("%w: payout %s is %s", orders.ErrPreconditionFailed, payoutID, p.Status)
	}
	return m.SetStatus(ctx, s, payoutID, orders.PayoutPaid, "")
}
