package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Tx is the per-order unit of work handed to the orchestrator.
type Tx struct{ tx pgx.Tx }

func (t *Tx) LockOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return loadOrder(ctx, t.tx, orderID, true)
}

func (t *Tx) SetDriver(ctx context.Context, orderID, driverID string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET driver_id=$2, updated_at=now() WHERE id=$1`, orderID, driverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", orders.ErrNotFound, orderID)
	}
	return nil
}

func (t *Tx) UpdateStatus(ctx context.Context, orderID string, status orders.Status, inventoryHeld bool) (orders.Order, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, inventory_held=$3, updated_at=now()
		WHERE id=$1`, orderID, string(status), inventoryHeld)
	if err != nil {
		return orders.Order{}, err
	}
	if tag.RowsAffected() == 0 {
		return orders.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, orderID)
	}
	return loadOrder(ctx, t.tx, orderID, false)
}

const inventoryColumns = `id, stock, low_stock_threshold, allow_backorder, available, updated_at`

func scanInventory(row pgx.Row) (orders.InventoryRecord, error) {
	var r orders.InventoryRecord
	err := row.Scan(&r.ProductID, &r.Stock, &r.LowStockThreshold, &r.AllowBackorder, &r.Available, &r.UpdatedAt)
	return r, err
}

// AdjustStock is a single conditional UPDATE; the row lock it takes serializes
// concurrent adjustments of one product.
func (t *Tx) AdjustStock(ctx context.Context, productID string, delta int) (orders.InventoryRecord, error) {
	r, err := scanInventory(t.tx.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2,
		    available = (stock + $2 > 0 OR allow_backorder),
		    updated_at = now()
		WHERE id = $1 AND (stock + $2 >= 0 OR allow_backorder)
		RETURNING `+inventoryColumns, productID, delta))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return orders.InventoryRecord{}, err
	}

	cur, err := t.InventoryRecord(ctx, productID)
	if err != nil {
		return orders.InventoryRecord{}, err
	}
	return orders.InventoryRecord{}, &orders.InsufficientStockError{Items: []orders.ShortItem{
		{ProductID: productID, Requested: -delta, Available: cur.Stock},
	}}
}

func (t *Tx) InventoryRecord(ctx context.Context, productID string) (orders.InventoryRecord, error) {
	r, err := scanInventory(t.tx.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM products WHERE id=$1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.InventoryRecord{}, fmt.Errorf("%w: product %s", orders.ErrNotFound, productID)
	}
	return r, err
}

const payoutColumns = `id, order_id, driver_id, amount_cents, status, reason, created_at, updated_at`

func scanPayout(row pgx.Row) (orders.Payout, error) {
	var (
		p      orders.Payout
		status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.DriverID, &p.AmountCents, &status, &p.Reason, &p.CreatedAt, &p.UpdatedAt)
	p.Status = orders.PayoutStatus(status)
	return p, err
}

func (t *Tx) PayoutByOrder(ctx context.Context, orderID string) (orders.Payout, error) {
	p, err := scanPayout(t.tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE order_id=$1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Payout{}, fmt.Errorf("%w: payout for order %s", orders.ErrNotFound, orderID)
	}
	return p, err
}

func (t *Tx) Payout(ctx context.Context, payoutID string) (orders.Payout, error) {
	p, err := scanPayout(t.tx.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id=$1 FOR UPDATE`, payoutID))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Payout{}, fmt.Errorf("%w: payout %s", orders.ErrNotFound, payoutID)
	}
	return p, err
}

func (t *Tx) InsertPayout(ctx context.Context, p orders.Payout) (orders.Payout, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return scanPayout(t.tx.QueryRow(ctx, `
		INSERT INTO payouts(id, order_id, driver_id, amount_cents, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+payoutColumns,
		p.ID, p.OrderID, p.DriverID, p.AmountCents, string(p.Status), p.Reason))
}

func (t *Tx) UpdatePayoutStatus(ctx context.Context, payoutID string, status orders.PayoutStatus, reason string) (orders.Payout, error) {
	p, err := scanPayout(t.tx.QueryRow(ctx, `
		UPDATE payouts
		SET status=$2, reason=COALESCE(NULLIF($3, ''), reason), updated_at=now()
		WHERE id=$1
		RETURNING `+payoutColumns, payoutID, string(status), reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Payout{}, fmt.Errorf("%w: payout %s", orders.ErrNotFound, payoutID)
	}
	return p, err
}

// AppendAudit inserts inside a savepoint so a failed insert leaves the outer
// transaction usable. The caller's deadline is applied as statement_timeout;
// a cancelled pgx context closes the connection, and the transaction with it.
func (t *Tx) AppendAudit(ctx context.Context, e orders.AuditEntry) error {
	timeoutMS := int64(0)
	if dl, ok := ctx.Deadline(); ok {
		timeoutMS = time.Until(dl).Milliseconds()
		if timeoutMS <= 0 {
			return context.DeadlineExceeded
		}
	}
	run := context.WithoutCancel(ctx)

	sp, err := t.tx.Begin(run)
	if err != nil {
		return err
	}
	if timeoutMS > 0 {
		if _, err := sp.Exec(run, `SELECT set_config('statement_timeout', $1, true)`, strconv.FormatInt(timeoutMS, 10)); err != nil {
			_ = sp.Rollback(run)
			return err
		}
	}

	md := e.Metadata
	if md == nil {
		md = map[string]any{}
	}
	_, err = sp.Exec(run, `
		INSERT INTO order_audit(id, order_id, old_status, new_status, reason, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.OrderID, string(e.OldStatus), string(e.NewStatus), e.Reason, e.Actor, md, e.CreatedAt)
	if err != nil {
		_ = sp.Rollback(run)
		return err
	}
	if timeoutMS > 0 {
		if _, err := sp.Exec(run, `SET LOCAL statement_timeout TO DEFAULT`); err != nil {
			_ = sp.Rollback(run)
			return err
		}
	}
	return sp.Commit(run)
}

func (t *Tx) AuditEntries(ctx context.Context, orderID string) ([]orders.AuditEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, old_status, new_status, reason, actor, metadata, created_at
		FROM order_audit WHERE order_id=$1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.AuditEntry{}
	for rows.Next() {
		var (
			e        orders.AuditEntry
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &from, &to, &e.Reason, &e.Actor, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OldStatus, e.NewStatus = orders.Status(from), orders.Status(to)
		out = append(out, e)
	}
	return out, rows.Err()
}
