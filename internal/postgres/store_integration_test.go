package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/gift-orders/internal/audit"
	"github.com/ariefcatur/gift-orders/internal/config"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/payouts"
	"github.com/ariefcatur/gift-orders/internal/transition"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Connect(ctx, dsn, 8)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return &Store{DB: pool}
}

func newTestOrchestrator(t *testing.T, s *Store) *transition.Orchestrator {
	t.Helper()
	o, err := transition.New(transition.Deps{
		Store:   s,
		Payouts: payouts.NewManager(payouts.Policy{Mode: config.PayoutFlat, FlatCents: 1500}, nil),
		Audit:   audit.New(audit.Options{Timeout: time.Second}),
	})
	require.NoError(t, err)
	return o
}

// ids are random per run so tests can share one database.
func uniq(prefix string) string { return prefix + "-" + uuid.NewString()[:8] }

func stockOf(t *testing.T, s *Store, productID string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB.QueryRow(context.Background(), `SELECT stock FROM products WHERE id=$1`, productID).Scan(&n))
	return n
}

func TestStore_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	orch := newTestOrchestrator(t, s)
	ctx := context.Background()

	p, d, o := uniq("p"), uniq("d"), uniq("o")
	require.NoError(t, s.PutProduct(ctx, orders.InventoryRecord{ProductID: p, Stock: 5}))
	require.NoError(t, s.PutDriver(ctx, orders.Driver{ID: d, Name: "Sari"}))
	require.NoError(t, s.PutOrder(ctx, orders.Order{ID: o, ShortCode: "GF-" + o, Status: orders.StatusVerifying, TotalCents: 50000,
		Items: []orders.Item{{ProductID: p, Quantity: 2, UnitPriceCents: 25000}}}))

	_, err := orch.Transition(ctx, transition.Request{OrderID: o, Status: orders.StatusPaid, Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, s, p))

	res, err := orch.AssignDriver(ctx, transition.AssignRequest{OrderID: o, DriverID: d, Actor: "admin", Transition: true})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAssigned, res.Order.Status)

	_, err = orch.Transition(ctx, transition.Request{OrderID: o, Status: orders.StatusDelivered})
	require.NoError(t, err)
	_, err = orch.Transition(ctx, transition.Request{OrderID: o, Status: orders.StatusRefunded, Reason: "damaged", Actor: "admin"})
	require.NoError(t, err)

	assert.Equal(t, 5, stockOf(t, s, p))

	var status string
	require.NoError(t, s.DB.QueryRow(ctx, `SELECT status FROM payouts WHERE order_id=$1`, o).Scan(&status))
	assert.Equal(t, string(orders.PayoutBlocked), status)

	history, err := orch.History(ctx, o)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "damaged", history[3].Reason)
	assert.Equal(t, "single", history[3].Metadata["origin"])
}

func TestStore_NoPartialDecrement(t *testing.T) {
	s := newTestStore(t)
	orch := newTestOrchestrator(t, s)
	ctx := context.Background()

	a, b, o := uniq("a"), uniq("b"), uniq("o")
	require.NoError(t, s.PutProduct(ctx, orders.InventoryRecord{ProductID: a, Stock: 10}))
	require.NoError(t, s.PutProduct(ctx, orders.InventoryRecord{ProductID: b, Stock: 1}))
	require.NoError(t, s.PutOrder(ctx, orders.Order{ID: o, ShortCode: "GF-" + o, Status: orders.StatusVerifying,
		Items: []orders.Item{{ProductID: a, Quantity: 4}, {ProductID: b, Quantity: 3}}}))

	_, err := orch.Transition(ctx, transition.Request{OrderID: o, Status: orders.StatusPaid})
	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, []orders.ShortItem{{ProductID: b, Requested: 3, Available: 1}}, orders.ShortItems(err))
	assert.Equal(t, 10, stockOf(t, s, a))
	assert.Equal(t, 1, stockOf(t, s, b))
}

func TestStore_ConcurrentLastUnit(t *testing.T) {
	s := newTestStore(t)
	orch := newTestOrchestrator(t, s)
	ctx := context.Background()

	p := uniq("p")
	require.NoError(t, s.PutProduct(ctx, orders.InventoryRecord{ProductID: p, Stock: 1}))
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = uniq(fmt.Sprintf("o%d", i))
		require.NoError(t, s.PutOrder(ctx, orders.Order{ID: ids[i], ShortCode: "GF-" + ids[i], Status: orders.StatusVerifying,
			Items: []orders.Item{{ProductID: p, Quantity: 1}}}))
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Transition(ctx, transition.Request{OrderID: id, Status: orders.StatusPaid})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, orders.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, stockOf(t, s, p))
}

func TestStore_AuditFailureKeepsTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := uniq("o")
	require.NoError(t, s.PutOrder(ctx, orders.Order{ID: o, ShortCode: "GF-" + o, Status: orders.StatusPending}))

	err := s.InTx(ctx, func(ctx context.Context, tx transition.Tx) error {
		// duplicate primary key makes the second insert fail inside its savepoint
		e := orders.AuditEntry{ID: uniq("a"), OrderID: o, OldStatus: orders.StatusPending, NewStatus: orders.StatusVerifying, Actor: "t", CreatedAt: time.Now()}
		require.NoError(t, tx.AppendAudit(ctx, e))
		require.Error(t, tx.AppendAudit(ctx, e))

		_, err := tx.UpdateStatus(ctx, o, orders.StatusVerifying, false)
		return err
	})
	require.NoError(t, err)

	got, err := s.Order(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusVerifying, got.Status)
}
