package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoredResponse is what an idempotent admin request answered the first time.
// A zero Status marks a request that holds the key but has not answered yet.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

func (r StoredResponse) Pending() bool { return r.Status == 0 }

type Idempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotency(rdb *redis.Client, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return &Idempotency{rdb: rdb, ttl: ttl}
}

func (i *Idempotency) Lookup(ctx context.Context, scope, key string) (StoredResponse, bool, error) {
	b, err := i.rdb.Get(ctx, fmt.Sprintf(KeyIdempotency, scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	var r StoredResponse
	if err := json.Unmarshal(b, &r); err != nil {
		return StoredResponse{}, false, fmt.Errorf("decode stored response: %w", err)
	}
	return r, true, nil
}

// Reserve claims the key with a pending marker. Only the caller that gets
// true may run the request; everyone else sees the marker or the response.
func (i *Idempotency) Reserve(ctx context.Context, scope, key string) (bool, error) {
	b, err := json.Marshal(StoredResponse{})
	if err != nil {
		return false, err
	}
	return i.rdb.SetNX(ctx, fmt.Sprintf(KeyIdempotency, scope, key), b, TTLIdempotencyPending).Result()
}

// Save replaces the pending marker with the final response.
func (i *Idempotency) Save(ctx context.Context, scope, key string, r StoredResponse) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdempotency, scope, key), b, i.ttl).Err()
}

// Release drops a reservation so the key can be retried.
func (i *Idempotency) Release(ctx context.Context, scope, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdempotency, scope, key)).Err()
}
