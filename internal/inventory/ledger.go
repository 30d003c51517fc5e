package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
)

// Ledger is the only writer of product stock counts. Every call locks the
// product row for the whole read-check-write, so two reservations on the same
// product always see each other's effect; distinct products never contend.
type Ledger struct{}

// LockAll locks the given products in ascending id order. Workflows touching
// several products call it first so that concurrent transactions agree on a
// lock order.
func (Ledger) LockAll(ctx context.Context, tx domain.StockTx, productIDs []int64) error {
	if len(productIDs) < 2 {
		return nil
	}
	if err := tx.LockProducts(ctx, productIDs); err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	return nil
}

// Reserve takes quantity units out of stock. Nothing is taken when stock is short.
func (l Ledger) Reserve(ctx context.Context, tx domain.StockTx, productID int64, quantity int) (domain.Product, error) {
	if quantity <= 0 {
		return domain.Product{}, domain.InvalidInput("quantity must be positive, got %d", quantity)
	}
	p, err := l.lock(ctx, tx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if p.Stock < quantity {
		return domain.Product{}, domain.InsufficientStock(productID, p.Stock, quantity)
	}
	p.Stock -= quantity
	if err := tx.SetStock(ctx, productID, p.Stock); err != nil {
		return domain.Product{}, fmt.Errorf("reserve product %d: %w", productID, err)
	}
	return p, nil
}

// Release puts quantity units back, undoing an earlier reservation.
func (l Ledger) Release(ctx context.Context, tx domain.StockTx, productID int64, quantity int) (domain.Product, error) {
	if quantity <= 0 {
		return domain.Product{}, domain.InvalidInput("quantity must be positive, got %d", quantity)
	}
	p, err := l.lock(ctx, tx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	p.Stock += quantity
	if err := tx.SetStock(ctx, productID, p.Stock); err != nil {
		return domain.Product{}, fmt.Errorf("release product %d: %w", productID, err)
	}
	return p, nil
}

// Adjust applies a signed change: positive deltas reserve, negative release.
// A zero delta touches nothing and returns a zero Product.
func (l Ledger) Adjust(ctx context.Context, tx domain.StockTx, productID int64, delta int) (domain.Product, error) {
	switch {
	case delta > 0:
		return l.Reserve(ctx, tx, productID, delta)
	case delta < 0:
		return l.Release(ctx, tx, productID, -delta)
	}
	return domain.Product{}, nil
}

func (Ledger) lock(ctx context.Context, tx domain.StockTx, productID int64) (domain.Product, error) {
	p, err := tx.LockProduct(ctx, productID)
	if errors.Is(err, domain.ErrNoRecord) {
		return domain.Product{}, domain.ProductNotFound(productID)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("lock product %d: %w", productID, err)
	}
	return p, nil
}

// Movement describes one committed stock change.
type Movement struct {
	ProductID int64
	Delta     int
	Stock     int
	MinStock  int
}

// Crossed reports whether this movement took stock from at-or-above the
// product's minimum to below it.
func (m Movement) Crossed() bool {
	before := m.Stock - m.Delta
	return m.Delta < 0 && m.Stock < m.MinStock && before >= m.MinStock
}

func MovementOf(p domain.Product, delta int) Movement {
	return Movement{ProductID: p.ID, Delta: delta, Stock: p.Stock, MinStock: p.MinStock}
}
