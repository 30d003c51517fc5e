package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderItemAdded     = "OrderItemAdded"
	EventOrderItemUpdated   = "OrderItemUpdated"
	EventOrderItemRemoved   = "OrderItemRemoved"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockAdjusted      = "StockAdjusted"
	EventStockLow           = "StockLow"
)

const (
	TopicOrders        = "warehouse.orders"
	TopicStockAdjusted = "inventory.stock.adjusted"
	TopicStockLow      = "inventory.stock.low"
)

// Envelope v1. Every event on every topic is wrapped in one.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Partition key is the order id for order events and the product id for
// stock events so each entity's events stay ordered.
func PartitionKey(id int64) []byte { return []byte(strconv.FormatInt(id, 10)) }

type OrderCreatedPayload struct {
	Order *Order `json:"order"`
}

type OrderItemPayload struct {
	OrderID   int64           `json:"order_id"`
	ItemID    int64           `json:"item_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price_at_order"`
}

type OrderStatusChangedPayload struct {
	OrderID  int64  `json:"order_id"`
	From     Status `json:"from"`
	To       Status `json:"to"`
	WorkerID *int64 `json:"worker_id,omitempty"`
}

type StockAdjustedPayload struct {
	ProductID int64 `json:"product_id"`
	OrderID   int64 `json:"order_id"`
	Delta     int   `json:"delta"`
	Stock     int   `json:"stock"`
	MinStock  int   `json:"min_stock"`
}

type StockLowPayload struct {
	ProductID int64 `json:"product_id"`
	Stock     int   `json:"stock"`
	MinStock  int   `json:"min_stock"`
}
