package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"go.uber.org/zap"
)

// Store is the storage side of the ledger. AdjustStock must be a single
// conditional write: it applies delta only when the result stays >= 0 or the
// record allows backorder, and otherwise returns *orders.InsufficientStockError
// without touching the row. Unknown products return orders.ErrNotFound.
type Store interface {
	AdjustStock(ctx context.Context, productID string, delta int) (orders.InventoryRecord, error)
	InventoryRecord(ctx context.Context, productID string) (orders.InventoryRecord, error)
}

type Adjustment struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	NewStock  int    `json:"new_stock"`
	Available bool   `json:"available"`
}

type Ledger struct {
	log *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger {
	return &Ledger{log: logging.OrNop(log)}
}

func (l *Ledger) Adjust(ctx context.Context, s Store, productID string, delta int) (Adjustment, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Adjustment{}, fmt.Errorf("%w: product id is required", orders.ErrValidation)
	}
	if delta == 0 {
		rec, err := s.InventoryRecord(ctx, productID)
		if err != nil {
			return Adjustment{}, err
		}
		return Adjustment{ProductID: productID, NewStock: rec.Stock, Available: rec.Available}, nil
	}

	rec, err := s.AdjustStock(ctx, productID, delta)
	if err != nil {
		return Adjustment{}, err
	}
	if delta < 0 && rec.LowStock() {
		l.log.Warn("inventory low stock",
			zap.String("product_id", productID),
			zap.Int("stock", rec.Stock),
			zap.Int("threshold", rec.LowStockThreshold),
		)
	}
	return Adjustment{ProductID: productID, Delta: delta, NewStock: rec.Stock, Available: rec.Available}, nil
}

// Decrement takes every item out of stock. Short items are collected rather
// than returned on first failure; the caller's transaction must roll back the
// successful adjustments when an *orders.InsufficientStockError comes back.
func (l *Ledger) Decrement(ctx context.Context, s Store, items []orders.Item) ([]Adjustment, error) {
	lines, err := aggregate(items)
	if err != nil {
		return nil, err
	}

	var (
		out    = make([]Adjustment, 0, len(lines))
		shorts []orders.ShortItem
	)
	for _, ln := range lines {
		adj, err := l.Adjust(ctx, s, ln.productID, -ln.qty)
		if err != nil {
			var se *orders.InsufficientStockError
			if errors.As(err, &se) {
				shorts = append(shorts, se.Items...)
				continue
			}
			return nil, err
		}
		out = append(out, adj)
	}
	if len(shorts) > 0 {
		return nil, &orders.InsufficientStockError{Items: shorts}
	}
	return out, nil
}

// Restock returns every item to stock by its exact quantity.
func (l *Ledger) Restock(ctx context.Context, s Store, items []orders.Item) ([]Adjustment, error) {
	lines, err := aggregate(items)
	if err != nil {
		return nil, err
	}
	out := make([]Adjustment, 0, len(lines))
	for _, ln := range lines {
		adj, err := l.Adjust(ctx, s, ln.productID, ln.qty)
		if err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, nil
}

type line struct {
	productID string
	qty       int
}

// aggregate merges duplicate product lines and sorts by product id so that
// concurrent transactions lock product rows in the same order.
func aggregate(items []orders.Item) ([]line, error) {
	qty := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: invalid quantity %d for product %s", orders.ErrValidation, it.Quantity, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	out := make([]line, 0, len(qty))
	for id, q := range qty {
		out = append(out, line{productID: id, qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out, nil
}
