package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/transition"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ DB *pgxpool.Pool }

var _ transition.Store = (*Store)(nil)

// InTx runs fn in one READ COMMITTED transaction. Order rows are locked with
// FOR UPDATE, so concurrent transitions on one order queue behind each other.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx transition.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Order(ctx context.Context, orderID string) (orders.Order, error) {
	return loadOrder(ctx, s.DB, orderID, false)
}

func (s *Store) Driver(ctx context.Context, driverID string) (orders.Driver, error) {
	var d orders.Driver
	err := s.DB.QueryRow(ctx, `SELECT id, name, phone FROM drivers WHERE id=$1`, driverID).
		Scan(&d.ID, &d.Name, &d.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Driver{}, fmt.Errorf("%w: driver %s", orders.ErrNotFound, driverID)
	}
	return d, err
}

const orderColumns = `id, short_code, status, subtotal_cents, delivery_fee_cents, total_cents,
	COALESCE(driver_id, ''), inventory_held, created_at, updated_at`

func loadOrder(ctx context.Context, q querier, orderID string, lock bool) (orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var (
		o      orders.Order
		status string
	)
	err := q.QueryRow(ctx, sql, orderID).Scan(
		&o.ID, &o.ShortCode, &status, &o.SubtotalCents, &o.DeliveryFeeCents, &o.TotalCents,
		&o.DriverID, &o.InventoryHeld, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, orderID)
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)

	rows, err := q.Query(ctx, `
		SELECT product_id, quantity, unit_price_cents
		FROM order_items WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it orders.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return orders.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}
