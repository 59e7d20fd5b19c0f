package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/redisx"
	"github.com/ariefcatur/gift-orders/internal/transition"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler exposes the orchestrator to the admin dashboard.
type AdminHandler struct {
	Orch    *transition.Orchestrator
	Cache   *redisx.StatusCache // optional
	Idem    ResponseStore       // optional
	Log     *zap.Logger
	Timeout time.Duration
}

type statusReq struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type bulkReq struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
	Reason   string   `json:"reason"`
	Actor    string   `json:"actor"`
}

type driverReq struct {
	DriverID string `json:"driver_id"`
	Actor    string `json:"actor"`
	// Transition defaults to true: attach the driver and move to assigned.
	Transition *bool `json:"transition"`
}

type paymentReq struct {
	PaymentStatus string `json:"payment_status"`
	Reason        string `json:"reason"`
	Actor         string `json:"actor"`
}

type adjustReq struct {
	Delta int    `json:"delta"`
	Actor string `json:"actor"`
}

type actorReq struct {
	Actor string `json:"actor"`
}

type transitionResp struct {
	Success bool         `json:"success"`
	Order   orders.Order `json:"order"`
	Message string       `json:"message"`
}

type orderResp struct {
	Order   orders.Order    `json:"order"`
	Allowed []orders.Status `json:"allowed_transitions"`
}

func (h *AdminHandler) Register(r chi.Router) {
	log := logging.OrNop(h.Log)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/audit", h.getAudit)

		r.Group(func(r chi.Router) {
			r.Use(idempotent(h.Idem, log))
			r.Post("/orders/{id}/status", h.changeStatus)
			r.Post("/orders/bulk-status", h.bulkStatus)
			r.Post("/orders/{id}/driver", h.assignDriver)
			r.Post("/orders/{id}/payment-status", h.changePaymentStatus)
			r.Post("/payouts/{id}/paid", h.markPayoutPaid)
			r.Post("/inventory/{productId}/adjust", h.adjustInventory)
		})
	})
}

func (h *AdminHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	t := h.Timeout
	if t <= 0 {
		t = 10 * time.Second
	}
	return context.WithTimeout(r.Context(), t)
}

// actor prefers the body field, then the X-Actor header set by the dashboard proxy.
func actor(r *http.Request, fromBody string) string {
	if a := strings.TrimSpace(fromBody); a != "" {
		return a
	}
	return strings.TrimSpace(r.Header.Get("X-Actor"))
}

func (h *AdminHandler) remember(ctx context.Context, list ...orders.Order) {
	if h.Cache == nil {
		return
	}
	for _, o := range list {
		h.Cache.Set(ctx, o)
	}
}

// forget drops cached views of orders whose transition was rejected as
// invalid; the dashboard acted on a stale status.
func (h *AdminHandler) forget(ctx context.Context, ids ...string) {
	if h.Cache == nil || len(ids) == 0 {
		return
	}
	h.Cache.Invalidate(ctx, ids...)
}

func (h *AdminHandler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	status, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Orch.Transition(ctx, transition.Request{
		OrderID: chi.URLParam(r, "id"),
		Status:  status,
		Reason:  req.Reason,
		Actor:   actor(r, req.Actor),
	})
	if err != nil {
		if orders.CodeOf(err) == orders.CodeInvalidTransition {
			h.forget(ctx, chi.URLParam(r, "id"))
		}
		writeError(w, err)
		return
	}
	h.remember(ctx, res.Order)
	writeJSON(w, http.StatusOK, transitionResp{Success: true, Order: res.Order, Message: res.Message})
}

func (h *AdminHandler) bulkStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkReq
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	status, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Orch.Bulk(ctx, transition.BulkRequest{
		OrderIDs: req.OrderIDs,
		Status:   status,
		Reason:   req.Reason,
		Actor:    actor(r, req.Actor),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.remember(ctx, res.Orders...)
	var stale []string
	for _, f := range res.Failed {
		if f.Code == orders.CodeInvalidTransition {
			stale = append(stale, f.OrderID)
		}
	}
	h.forget(ctx, stale...)
	writeJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) assignDriver(w http.ResponseWriter, r *http.Request) {
	var req driverReq
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	move := req.Transition == nil || *req.Transition

	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Orch.AssignDriver(ctx, transition.AssignRequest{
		OrderID:    chi.URLParam(r, "id"),
		DriverID:   req.DriverID,
		Actor:      actor(r, req.Actor),
		Transition: move,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.remember(ctx, res.Order)
	writeJSON(w, http.StatusOK, transitionResp{Success: true, Order: res.Order, Message: res.Message})
}

func (h *AdminHandler) changePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	ps, err := orders.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Orch.ChangePaymentStatus(ctx, transition.PaymentRequest{
		OrderID:       chi.URLParam(r, "id"),
		PaymentStatus: ps,
		Reason:        req.Reason,
		Actor:         actor(r, req.Actor),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.remember(ctx, res.Order)
	writeJSON(w, http.StatusOK, transitionResp{Success: true, Order: res.Order, Message: res.Message})
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	id := chi.URLParam(r, "id")
	var (
		o   orders.Order
		err error
	)
	if h.Cache != nil {
		o, err = h.Cache.Get(ctx, id, h.Orch.Order)
	} else {
		o, err = h.Orch.Order(ctx, id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: o, Allowed: orders.AllowedTargets(o.Status)})
}

func (h *AdminHandler) getAudit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	entries, err := h.Orch.History(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AdminHandler) markPayoutPaid(w http.ResponseWriter, r *http.Request) {
	var req actorReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	p, err := h.Orch.MarkPayoutPaid(ctx, chi.URLParam(r, "id"), actor(r, req.Actor))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payout": p})
}

func (h *AdminHandler) adjustInventory(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	adj, err := h.Orch.AdjustInventory(ctx, chi.URLParam(r, "productId"), req.Delta, actor(r, req.Actor))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}
