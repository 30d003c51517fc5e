package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
)

// OrderCache keeps order read models in Redis. Redis is never the source of
// truth: every failure is logged and treated as a miss.
type OrderCache struct {
	rdb    redis.Cmdable
	logger *zap.Logger
}

func NewOrderCache(rdb redis.Cmdable, logger *zap.Logger) *OrderCache {
	return &OrderCache{rdb: rdb, logger: logger}
}

func (c *OrderCache) Get(ctx context.Context, id int64) (*domain.Order, bool) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrder, id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("order cache get", zap.Int64("order_id", id), zap.Error(err))
		}
		return nil, false
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		c.logger.Warn("order cache decode", zap.Int64("order_id", id), zap.Error(err))
		return nil, false
	}
	return &o, true
}

// setIfNewer stores ARGV[1] unless the cached copy already has a version at
// least ARGV[2]. The comparison and the write happen atomically in Redis.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, doc = pcall(cjson.decode, cur)
	if ok and type(doc) == 'table' and tonumber(doc['version']) and tonumber(doc['version']) >= tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// Set caches o unless a copy with the same or a higher version is already
// there.
func (c *OrderCache) Set(ctx context.Context, o *domain.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(KeyOrder, o.ID)
	if err := setIfNewer.Run(ctx, c.rdb, []string{key}, b, o.Version, TTLOrderCache.Milliseconds()).Err(); err != nil {
		c.logger.Warn("order cache set", zap.Int64("order_id", o.ID), zap.Int64("version", o.Version), zap.Error(err))
		// Never leave an entry behind that might be older than what was committed.
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("order cache drop", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
}

// Idempotency maps client supplied keys to the order they created. A key is
// claimed before the order is created and holds pendingMarker until then, so
// two requests with the same key never both create an order.
type Idempotency struct {
	rdb redis.Cmdable
}

const pendingMarker = "pending"

func NewIdempotency(rdb redis.Cmdable) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Claim reserves key for the caller. It reports false when the key is already
// claimed or already maps to an order.
func (i *Idempotency) Claim(ctx context.Context, key string) (bool, error) {
	return i.rdb.SetNX(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), pendingMarker, TTLIdempotencyPending).Result()
}

// Lookup returns the order id recorded for key. found is false while the key
// is absent or still pending.
func (i *Idempotency) Lookup(ctx context.Context, key string) (orderID int64, found bool, err error) {
	s, err := i.rdb.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if errors.Is(err, redis.Nil) || s == pendingMarker {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("idempotency key %q holds %q: %w", key, s, err)
	}
	return id, true, nil
}

// Remember records the created order, replacing the claim.
func (i *Idempotency) Remember(ctx context.Context, key string, orderID int64) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

var releasePending = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Release drops a claim whose order was never created. A key that already
// maps to an order is left alone.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	return releasePending.Run(ctx, i.rdb, []string{fmt.Sprintf(KeyIdemOrderCreate, key)}, pendingMarker).Err()
}
