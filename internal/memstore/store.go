// Package memstore is an in-process transition.Store for local runs and tests.
// Transactions are serialized by one mutex and work on a copy of the state that
// replaces the original only on commit.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/transition"
)

type state struct {
	orders   map[string]orders.Order
	products map[string]orders.InventoryRecord
	payouts  map[string]orders.Payout
	byOrder  map[string]string // order id -> payout id
	drivers  map[string]orders.Driver
	audit    []orders.AuditEntry
}

func (s *state) clone() *state {
	return &state{
		orders:   maps.Clone(s.orders),
		products: maps.Clone(s.products),
		payouts:  maps.Clone(s.payouts),
		byOrder:  maps.Clone(s.byOrder),
		drivers:  maps.Clone(s.drivers),
		audit:    slices.Clone(s.audit),
	}
}

type Store struct {
	mu    sync.Mutex
	st    *state
	clock func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			orders:   map[string]orders.Order{},
			products: map[string]orders.InventoryRecord{},
			payouts:  map[string]orders.Payout{},
			byOrder:  map[string]string{},
			drivers:  map[string]orders.Driver{},
		},
		clock: time.Now,
	}
}

var _ transition.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx transition.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Order(_ context.Context, orderID string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[orderID]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: order %s", orders.ErrNotFound, orderID)
	}
	return o, nil
}

func (s *Store) Driver(_ context.Context, driverID string) (orders.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.st.drivers[driverID]
	if !ok {
		return orders.Driver{}, fmt.Errorf("%w: driver %s", orders.ErrNotFound, driverID)
	}
	return d, nil
}

func (s *Store) now() time.Time { return s.clock().UTC() }

// Seeding and inspection helpers.

func (s *Store) PutProduct(r orders.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Available = available(r.Stock, r.AllowBackorder)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	s.st.products[r.ProductID] = r
}

func (s *Store) PutOrder(o orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
		o.UpdatedAt = o.CreatedAt
	}
	o.Items = slices.Clone(o.Items)
	s.st.orders[o.ID] = o
}

func (s *Store) PutDriver(d orders.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.drivers[d.ID] = d
}

func (s *Store) Product(productID string) (orders.InventoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.products[productID]
	return r, ok
}

func (s *Store) PayoutOf(orderID string) (orders.Payout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.byOrder[orderID]
	if !ok {
		return orders.Payout{}, false
	}
	return s.st.payouts[id], true
}

func (s *Store) PayoutCount(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.st.payouts {
		if p.OrderID == orderID {
			n++
		}
	}
	return n
}

func (s *Store) Audit(orderID string) []orders.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.AuditEntry
	for _, e := range s.st.audit {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func available(stock int, backorder bool) bool {
	return stock > 0 || backorder
}
