package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Deduper struct {
	rdb *redis.Client
}

func NewDeduper(rdb *redis.Client) *Deduper { return &Deduper{rdb: rdb} }

func (d *Deduper) Seen(ctx context.Context, scope, id string) (bool, error) {
	return Exists(ctx, d.rdb, fmt.Sprintf(KeyDedup, scope, id))
}

func (d *Deduper) Mark(ctx context.Context, scope, id string) error {
	return d.rdb.Set(ctx, fmt.Sprintf(KeyDedup, scope, id), 1, TTLDedup).Err()
}
