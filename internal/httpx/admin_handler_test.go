package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/gift-orders/internal/config"
	"github.com/ariefcatur/gift-orders/internal/memstore"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/payouts"
	"github.com/ariefcatur/gift-orders/internal/redisx"
	"github.com/ariefcatur/gift-orders/internal/transition"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	store *memstore.Store
	mr    *miniredis.Miniredis
	h     http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memstore.New()
	store.PutProduct(orders.InventoryRecord{ProductID: "p", Stock: 1})
	store.PutDriver(orders.Driver{ID: "d1", Name: "Sari"})
	store.PutOrder(orders.Order{ID: "o1", ShortCode: "GF-1", Status: orders.StatusVerifying, Items: []orders.Item{{ProductID: "p", Quantity: 1}}})
	store.PutOrder(orders.Order{ID: "o2", ShortCode: "GF-2", Status: orders.StatusVerifying, Items: []orders.Item{{ProductID: "p", Quantity: 1}}})

	orch, err := transition.New(transition.Deps{
		Store:   store,
		Payouts: payouts.NewManager(payouts.Policy{Mode: config.PayoutFlat, FlatCents: 1500}, nil),
	})
	require.NoError(t, err)

	r := NewRouter(5 * time.Second)
	(&AdminHandler{
		Orch:  orch,
		Cache: redisx.NewStatusCache(rdb, time.Minute, nil),
		Idem:  redisx.NewIdempotency(rdb, time.Hour),
	}).Register(r)
	return &testServer{store: store, mr: mr, h: r}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChangeStatus(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "Paid", "actor": "ops"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[transitionResp](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, orders.StatusPaid, resp.Order.Status)
	assert.Equal(t, "Order GF-1 moved from verifying to paid", resp.Message)
	assert.True(t, s.mr.Exists("order_status:o1"))
}

func TestChangeStatus_ErrorCodes(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		path   string
		body   map[string]string
		status int
		code   orders.Code
	}{
		{"invalid transition", "/admin/orders/o1/status", map[string]string{"status": "delivered"}, http.StatusConflict, orders.CodeInvalidTransition},
		{"unknown status", "/admin/orders/o1/status", map[string]string{"status": "lost"}, http.StatusBadRequest, orders.CodeValidation},
		{"missing reason", "/admin/orders/o1/status", map[string]string{"status": "canceled"}, http.StatusBadRequest, orders.CodeValidation},
		{"not found", "/admin/orders/nope/status", map[string]string{"status": "paid"}, http.StatusNotFound, orders.CodeNotFound},
		{"unknown field", "/admin/orders/o1/status", map[string]string{"state": "paid"}, http.StatusBadRequest, orders.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			body := decodeBody[errorBody](t, rec)
			assert.Equal(t, tc.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestChangeStatus_InvalidTransitionDropsCachedView(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/admin/orders/o1", nil).Code)
	require.True(t, s.mr.Exists("order_status:o1"))

	rec := s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, s.mr.Exists("order_status:o1"))
}

func TestChangeStatus_InsufficientStockDetail(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "paid"}).Code)

	rec := s.do(t, http.MethodPost, "/admin/orders/o2/status", map[string]string{"status": "paid"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t,
		`{"code":"insufficient_stock","message":"order: insufficient stock: p (requested 1, available 0)","detail":{"short_items":[{"product_id":"p","requested":1,"available":0}]}}`,
		rec.Body.String())
}

func TestPreconditionFailed(t *testing.T) {
	s := newTestServer(t)
	s.store.PutOrder(orders.Order{ID: "o3", ShortCode: "GF-3", Status: orders.StatusPaid})

	rec := s.do(t, http.MethodPost, "/admin/orders/o3/status", map[string]string{"status": "assigned"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestIdempotencyKeyReplays(t *testing.T) {
	s := newTestServer(t)
	s.store.PutProduct(orders.InventoryRecord{ProductID: "p", Stock: 5})

	first := s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "paid"}, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusOK, first.Code)

	// the order moves on; a replay must still answer with the first response
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "verifying"}).Code)

	replay := s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "paid"}, HeaderIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	r, _ := s.store.Product("p")
	assert.Equal(t, 4, r.Stock)
}

func TestIdempotencyKey_InFlightDuplicateIsRejected(t *testing.T) {
	s := newTestServer(t)
	s.store.PutProduct(orders.InventoryRecord{ProductID: "p", Stock: 10})
	rdb := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	idem := redisx.NewIdempotency(rdb, time.Hour)

	won, err := idem.Reserve(context.Background(), "POST /admin/inventory/p/adjust", "k-adj")
	require.NoError(t, err)
	require.True(t, won)

	rec := s.do(t, http.MethodPost, "/admin/inventory/p/adjust", map[string]int{"delta": -3}, HeaderIdempotencyKey, "k-adj")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "request_in_flight", decodeBody[map[string]any](t, rec)["code"])
	r, _ := s.store.Product("p")
	assert.Equal(t, 10, r.Stock)

	require.NoError(t, idem.Release(context.Background(), "POST /admin/inventory/p/adjust", "k-adj"))
	rec = s.do(t, http.MethodPost, "/admin/inventory/p/adjust", map[string]int{"delta": -3}, HeaderIdempotencyKey, "k-adj")
	assert.Equal(t, http.StatusOK, rec.Code)
	r, _ = s.store.Product("p")
	assert.Equal(t, 7, r.Stock)
}

func TestIdempotencyKey_ConcurrentDuplicatesApplyOnce(t *testing.T) {
	s := newTestServer(t)
	s.store.PutProduct(orders.InventoryRecord{ProductID: "p", Stock: 10})

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/admin/inventory/p/adjust", strings.NewReader(`{"delta":-3}`))
			req.Header.Set(HeaderIdempotencyKey, "k-race")
			rec := httptest.NewRecorder()
			s.h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, c := range codes {
		assert.Contains(t, []int{http.StatusOK, http.StatusConflict}, c)
		if c == http.StatusOK {
			ok++
		}
	}
	assert.GreaterOrEqual(t, ok, 1)
	r, _ := s.store.Product("p")
	assert.Equal(t, 7, r.Stock)
}

func TestIdempotencyKey_ServerErrorReleasesKey(t *testing.T) {
	store := &stubResponseStore{stored: map[string]redisx.StoredResponse{}}
	calls := 0
	h := idempotent(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(HeaderIdempotencyKey, "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.stored)
}

type stubResponseStore struct {
	stored map[string]redisx.StoredResponse
}

func (s *stubResponseStore) Lookup(_ context.Context, scope, key string) (redisx.StoredResponse, bool, error) {
	r, ok := s.stored[scope+key]
	return r, ok, nil
}

func (s *stubResponseStore) Reserve(_ context.Context, scope, key string) (bool, error) {
	if _, ok := s.stored[scope+key]; ok {
		return false, nil
	}
	s.stored[scope+key] = redisx.StoredResponse{}
	return true, nil
}

func (s *stubResponseStore) Save(_ context.Context, scope, key string, r redisx.StoredResponse) error {
	s.stored[scope+key] = r
	return nil
}

func (s *stubResponseStore) Release(_ context.Context, scope, key string) error {
	delete(s.stored, scope+key)
	return nil
}

func TestBulkStatus(t *testing.T) {
	s := newTestServer(t)
	s.store.PutProduct(orders.InventoryRecord{ProductID: "p", Stock: 5})

	rec := s.do(t, http.MethodPost, "/admin/orders/bulk-status", map[string]any{
		"order_ids": []string{"o1", "o2", "ghost"},
		"status":    "paid",
		"actor":     "ops",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Successful []string             `json:"successful"`
		Failed     []orders.FailedOrder `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"GF-1", "GF-2"}, resp.Successful)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "ghost", resp.Failed[0].OrderID)
	assert.Equal(t, orders.CodeNotFound, resp.Failed[0].Code)

	rec = s.do(t, http.MethodPost, "/admin/orders/bulk-status", map[string]any{"order_ids": []string{}, "status": "paid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssignDriverAndPayout(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "paid"}).Code)

	rec := s.do(t, http.MethodPost, "/admin/orders/o1/driver", map[string]string{"driver_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/orders/o1/driver", map[string]string{"driver_id": "d1"}, "X-Actor", "dispatcher")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusAssigned, decodeBody[transitionResp](t, rec).Order.Status)
	assert.Equal(t, "dispatcher", s.store.Audit("o1")[1].Actor)

	p, ok := s.store.PayoutOf("o1")
	require.True(t, ok)
	rec = s.do(t, http.MethodPost, "/admin/payouts/"+p.ID+"/paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p, _ = s.store.PayoutOf("o1")
	assert.Equal(t, orders.PayoutPaid, p.Status)
}

func TestPaymentStatus(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/admin/orders/o1/payment-status", map[string]string{"payment_status": "verified"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusPaid, decodeBody[transitionResp](t, rec).Order.Status)

	rec = s.do(t, http.MethodPost, "/admin/orders/o1/payment-status", map[string]string{"payment_status": "bounced"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderAndAudit(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/admin/orders/o1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[orderResp](t, rec)
	assert.Equal(t, orders.StatusVerifying, resp.Order.Status)
	assert.Equal(t, orders.AllowedTargets(orders.StatusVerifying), resp.Allowed)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/orders/o1/status", map[string]string{"status": "paid"}).Code)
	resp = decodeBody[orderResp](t, s.do(t, http.MethodGet, "/admin/orders/o1", nil))
	assert.Equal(t, orders.StatusPaid, resp.Order.Status)

	rec = s.do(t, http.MethodGet, "/admin/orders/o1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decodeBody[struct {
		Entries []orders.AuditEntry `json:"entries"`
	}](t, rec)
	require.Len(t, audit.Entries, 1)
	assert.Equal(t, orders.StatusPaid, audit.Entries[0].NewStatus)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/admin/orders/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/admin/orders/ghost/audit", nil).Code)
}

func TestAdjustInventory(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/admin/inventory/p/adjust", map[string]int{"delta": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"product_id":"p","delta":3,"new_stock":4,"available":true}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/admin/inventory/p/adjust", map[string]int{"delta": -10})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
