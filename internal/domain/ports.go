package domain

import (
	"context"
	"errors"
)

// ErrNoRecord is returned (possibly wrapped) by stores when a row does not exist.
var ErrNoRecord = errors.New("record not found")

// Store is the backing storage for orders and stock. Writes only happen inside
// WithTx; reads outside a transaction only ever see committed state.
type Store interface {
	// WithTx runs fn in a single transaction. The transaction commits only when
	// fn returns nil and ctx is still live; every other exit rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
}

// StockTx is the slice of a transaction the stock ledger needs.
type StockTx interface {
	// LockProduct takes the exclusive row lock on a product and returns its
	// current state. The lock is held until the transaction ends.
	LockProduct(ctx context.Context, id int64) (Product, error)
	// LockProducts locks several product rows in ascending id order. Unknown
	// ids are skipped.
	LockProducts(ctx context.Context, ids []int64) error
	SetStock(ctx context.Context, id int64, stock int) error
}

type Tx interface {
	StockTx

	CustomerExists(ctx context.Context, id int64) (bool, error)
	WorkerExists(ctx context.Context, id int64) (bool, error)

	// LockOrder locks the order row and returns it with its items.
	LockOrder(ctx context.Context, id int64) (*Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, it *OrderItem) error
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteItem(ctx context.Context, itemID int64) error
	UpdateStatus(ctx context.Context, orderID int64, c StatusChange) error
	// TouchOrder increments the order's version. Every workflow that changes
	// an existing order calls it exactly once.
	TouchOrder(ctx context.Context, orderID int64) error
}

type OrderFilter struct {
	Status     Status
	CustomerID int64
	Limit      int
}
