package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/transition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	s := New()
	s.PutProduct(orders.InventoryRecord{ProductID: "p", Stock: 2})
	s.PutOrder(orders.Order{ID: "o", ShortCode: "GF-1", Items: []orders.Item{{ProductID: "p", Quantity: 1}}})
	return s
}

func TestInTx_RollbackDiscardsWrites(t *testing.T) {
	s := newTestStore()
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx transition.Tx) error {
		_, err := tx.AdjustStock(ctx, "p", -2)
		require.NoError(t, err)
		_, err = tx.UpdateStatus(ctx, "o", orders.StatusPaid, true)
		require.NoError(t, err)
		require.NoError(t, tx.AppendAudit(ctx, orders.AuditEntry{OrderID: "o"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	r, _ := s.Product("p")
	assert.Equal(t, 2, r.Stock)
	o, _ := s.Order(context.Background(), "o")
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Empty(t, s.Audit("o"))
}

func TestAdjustStock_Conditional(t *testing.T) {
	s := newTestStore()

	err := s.InTx(context.Background(), func(ctx context.Context, tx transition.Tx) error {
		_, err := tx.AdjustStock(ctx, "p", -3)
		assert.Equal(t, []orders.ShortItem{{ProductID: "p", Requested: 3, Available: 2}}, orders.ShortItems(err))

		r, err := tx.AdjustStock(ctx, "p", -2)
		require.NoError(t, err)
		assert.Equal(t, 0, r.Stock)
		assert.False(t, r.Available)

		_, err = tx.AdjustStock(ctx, "ghost", 1)
		assert.ErrorIs(t, err, orders.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestPayouts(t *testing.T) {
	s := newTestStore()

	err := s.InTx(context.Background(), func(ctx context.Context, tx transition.Tx) error {
		_, err := tx.PayoutByOrder(ctx, "o")
		assert.ErrorIs(t, err, orders.ErrNotFound)

		p, err := tx.InsertPayout(ctx, orders.Payout{OrderID: "o", DriverID: "d", AmountCents: 100, Status: orders.PayoutQueued})
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)

		p, err = tx.UpdatePayoutStatus(ctx, p.ID, orders.PayoutReverted, "refund")
		require.NoError(t, err)
		assert.Equal(t, "refund", p.Reason)
		return nil
	})
	require.NoError(t, err)

	p, ok := s.PayoutOf("o")
	require.True(t, ok)
	assert.Equal(t, orders.PayoutReverted, p.Status)
}

func TestInTx_CanceledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(context.Context, transition.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSeedDemo(t *testing.T) {
	s := New()
	SeedDemo(s)

	o, err := s.Order(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusVerifying, o.Status)
	_, err = s.Driver(context.Background(), "drv-1")
	assert.NoError(t, err)
	r, _ := s.Product("choc-box")
	assert.True(t, r.Available)
}
