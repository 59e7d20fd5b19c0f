package redisx

import "time"

const (
	// Idempotent admin request replay: idem:{route}:{key} -> stored response
	KeyIdempotency = "idem:%s:%s"

	// Cached order view: order_status:{order_id} -> orders.Order json
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	// in-flight marker; outlives any admin request timeout
	TTLIdempotencyPending = time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
