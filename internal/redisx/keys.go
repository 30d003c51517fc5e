package redisx

import "time"

const (
	// idem:order:create:{idempotency key} -> order id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// order:{order id} -> order read model JSON
	KeyOrder = "order:%d"

	// dedup:{service}:{event id}
	KeyDedup = "dedup:%s:%s"

	// lowstock:{product id} -> "1" while an alert is outstanding
	KeyLowStock = "lowstock:%d"
)

var (
	TTLIdempotency = 24 * time.Hour
	// A claim outlives any single create request; an abandoned one expires.
	TTLIdempotencyPending = time.Minute
	TTLOrderCache         = 5 * time.Minute
	TTLDedup              = 48 * time.Hour
	TTLLowStock           = time.Hour
)
