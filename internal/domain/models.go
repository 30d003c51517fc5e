package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Supplier    string          `json:"supplier,omitempty"`
	Stock       int             `json:"stock"`
	Price       decimal.Decimal `json:"price"`
	MinStock    int             `json:"minStock"`
}

type Customer struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Worker struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Order is both the aggregate and the read model returned to callers.
// Version starts at 1 and grows with every committed change, so two copies of
// the same order can be ordered by age.
type Order struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customerId"`
	Status     Status      `json:"status"`
	Version    int64       `json:"version"`
	CreatedAt  time.Time   `json:"createdAt"`
	PickerID   *int64      `json:"pickerId,omitempty"`
	PackerID   *int64      `json:"packerId,omitempty"`
	PickedAt   *time.Time  `json:"pickedAt,omitempty"`
	PackedAt   *time.Time  `json:"packedAt,omitempty"`
	ShippedAt  *time.Time  `json:"shippedAt,omitempty"`
	Items      []OrderItem `json:"items"`
}

// IsEditable reports whether items may still be added, changed or removed.
func (o *Order) IsEditable() bool { return o.Status == StatusPending }

func (o *Order) ItemCount() int { return len(o.Items) }

type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"-"`
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	Quantity     int             `json:"quantity"`
	PriceAtOrder decimal.Decimal `json:"priceAtOrder"`
}

type ItemInput struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}
