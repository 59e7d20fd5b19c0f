package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type LoadFunc func(ctx context.Context, orderID string) (orders.Order, error)

// StatusCache is a cache-aside view of orders for the dashboard. Redis errors
// degrade to a direct load; concurrent misses for one order share a load.
type StatusCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewStatusCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	return &StatusCache{rdb: rdb, ttl: ttl, log: logging.OrNop(log)}
}

func (c *StatusCache) Get(ctx context.Context, orderID string, load LoadFunc) (orders.Order, error) {
	if o, ok := c.lookup(ctx, orderID); ok {
		return o, nil
	}

	v, err, _ := c.group.Do(orderID, func() (any, error) {
		if o, ok := c.lookup(ctx, orderID); ok {
			return o, nil
		}
		o, err := load(ctx, orderID)
		if err != nil {
			return orders.Order{}, err
		}
		c.Set(ctx, o)
		return o, nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return v.(orders.Order), nil
}

func (c *StatusCache) Set(ctx context.Context, o orders.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(o.ID), b, c.ttl).Err(); err != nil {
		c.log.Warn("status cache set failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, orderIDs ...string) {
	if len(orderIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		keys = append(keys, key(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("status cache invalidate failed", zap.Strings("order_ids", orderIDs), zap.Error(err))
	}
}

func (c *StatusCache) lookup(ctx context.Context, orderID string) (orders.Order, bool) {
	b, err := c.rdb.Get(ctx, key(orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("status cache get failed", zap.String("order_id", orderID), zap.Error(err))
		}
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false
	}
	return o, true
}

func key(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }
