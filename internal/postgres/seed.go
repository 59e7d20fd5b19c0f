package postgres

import (
	"context"

	"github.com/ariefcatur/gift-orders/internal/orders"
)

func (s *Store) PutProduct(ctx context.Context, r orders.InventoryRecord) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, stock, low_stock_threshold, allow_backorder, available)
		VALUES ($1, $2, $3, $4, ($2 > 0 OR $4))
		ON CONFLICT (id) DO UPDATE
		SET stock=EXCLUDED.stock, low_stock_threshold=EXCLUDED.low_stock_threshold,
		    allow_backorder=EXCLUDED.allow_backorder, available=EXCLUDED.available, updated_at=now()`,
		r.ProductID, r.Stock, r.LowStockThreshold, r.AllowBackorder)
	return err
}

func (s *Store) PutDriver(ctx context.Context, d orders.Driver) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO drivers(id, name, phone) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, phone=EXCLUDED.phone`,
		d.ID, d.Name, d.Phone)
	return err
}

// PutOrder inserts an order with its items, as checkout would.
func (s *Store) PutOrder(ctx context.Context, o orders.Order) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	var driver any
	if o.DriverID != "" {
		driver = o.DriverID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, short_code, status, subtotal_cents, delivery_fee_cents, total_cents, driver_id, inventory_held)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.ShortCode, string(o.Status), o.SubtotalCents, o.DeliveryFeeCents, o.TotalCents, driver, o.InventoryHeld); err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4)`, o.ID, it.ProductID, it.Quantity, it.UnitPriceCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
