package httpx

import (
	"bytes"
	"context"
	"net/http"

	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/redisx"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type ResponseStore interface {
	Lookup(ctx context.Context, scope, key string) (redisx.StoredResponse, bool, error)
	Reserve(ctx context.Context, scope, key string) (bool, error)
	Save(ctx context.Context, scope, key string, r redisx.StoredResponse) error
	Release(ctx context.Context, scope, key string) error
}

const codeRequestInFlight orders.Code = "request_in_flight"

// idempotent replays the first response given for an Idempotency-Key. The key
// is reserved before the handler runs, so a duplicate that arrives meanwhile
// gets 409 instead of running twice. Server errors release the key so the
// caller can retry them.
func idempotent(store ResponseStore, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			scope := r.Method + " " + r.URL.Path

			if stored, ok, err := store.Lookup(r.Context(), scope, key); err != nil {
				log.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			} else if ok {
				replay(w, stored)
				return
			}

			won, err := store.Reserve(r.Context(), scope, key)
			if err != nil {
				log.Warn("idempotency reserve failed", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !won {
				stored, ok, err := store.Lookup(r.Context(), scope, key)
				if err != nil || !ok {
					stored = redisx.StoredResponse{}
				}
				replay(w, stored)
				return
			}

			var buf bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&buf)
			next.ServeHTTP(ww, r)

			ctx := context.WithoutCancel(r.Context())
			status := ww.Status()
			if status == 0 || status >= 500 {
				if err := store.Release(ctx, scope, key); err != nil {
					log.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
				}
				return
			}
			resp := redisx.StoredResponse{Status: status, Body: bytes.TrimSpace(buf.Bytes())}
			if err := store.Save(ctx, scope, key, resp); err != nil {
				log.Warn("idempotency save failed", zap.String("key", key), zap.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, stored redisx.StoredResponse) {
	if stored.Pending() {
		writeJSON(w, http.StatusConflict, errorBody{
			Code:    codeRequestInFlight,
			Message: "a request with this Idempotency-Key is still in progress",
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}
