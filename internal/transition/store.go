package transition

import (
	"context"

	"github.com/ariefcatur/gift-orders/internal/audit"
	"github.com/ariefcatur/gift-orders/internal/inventory"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/payouts"
)

// Tx is one unit of work for a single order. Everything done through it
// commits together or not at all.
type Tx interface {
	inventory.Store
	payouts.Store
	audit.Store

	// LockOrder reads the order and holds it until the unit of work ends.
	LockOrder(ctx context.Context, orderID string) (orders.Order, error)
	SetDriver(ctx context.Context, orderID, driverID string) error
	UpdateStatus(ctx context.Context, orderID string, status orders.Status, inventoryHeld bool) (orders.Order, error)
}

type Store interface {
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Order(ctx context.Context, orderID string) (orders.Order, error)
	Driver(ctx context.Context, driverID string) (orders.Driver, error)
}
