package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
)

type tx struct {
	s    *Store
	held []rowLock

	lockedProducts map[int64]bool
	lockedOrders   map[int64]bool

	stock    map[int64]int
	orders   map[int64]domain.Order
	inserted map[int64]bool
	newItems map[int64]domain.OrderItem
	qty      map[int64]int
	deleted  map[int64]bool
}

func newTx(s *Store) *tx {
	return &tx{
		s:              s,
		lockedProducts: map[int64]bool{},
		lockedOrders:   map[int64]bool{},
		stock:          map[int64]int{},
		orders:         map[int64]domain.Order{},
		inserted:       map[int64]bool{},
		newItems:       map[int64]domain.OrderItem{},
		qty:            map[int64]int{},
		deleted:        map[int64]bool{},
	}
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].unlock()
	}
	t.held = nil
}

func (t *tx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range t.stock {
		s.products[id].p.Stock = v
	}
	for id, o := range t.orders {
		o.Items = nil
		if t.inserted[id] {
			s.orders[id] = &orderRow{o: o, lock: newRowLock()}
			s.orderItems[id] = map[int64]struct{}{}
			continue
		}
		s.orders[id].o = o
	}
	for id, it := range t.newItems {
		s.items[id] = it
		s.orderItems[it.OrderID][id] = struct{}{}
	}
	for id, q := range t.qty {
		it := s.items[id]
		it.Quantity = q
		s.items[id] = it
	}
	for id := range t.deleted {
		it := s.items[id]
		delete(s.orderItems[it.OrderID], id)
		delete(s.items, id)
	}
}

func (t *tx) productRow(id int64) *productRow {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.products[id]
}

func (t *tx) lockProductRow(ctx context.Context, id int64, row *productRow) error {
	if t.lockedProducts[id] {
		return nil
	}
	if err := row.lock.lock(ctx); err != nil {
		return err
	}
	t.held = append(t.held, row.lock)
	t.lockedProducts[id] = true
	return nil
}

func (t *tx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	row := t.productRow(id)
	if row == nil {
		return domain.Product{}, domain.ErrNoRecord
	}
	if err := t.lockProductRow(ctx, id, row); err != nil {
		return domain.Product{}, err
	}
	t.s.mu.RLock()
	p := row.p
	t.s.mu.RUnlock()
	if v, ok := t.stock[id]; ok {
		p.Stock = v
	}
	return p, nil
}

func (t *tx) LockProducts(ctx context.Context, ids []int64) error {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		row := t.productRow(id)
		if row == nil {
			continue
		}
		if err := t.lockProductRow(ctx, id, row); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) SetStock(ctx context.Context, id int64, stock int) error {
	if !t.lockedProducts[id] {
		return fmt.Errorf("memstore: product %d written without lock", id)
	}
	if stock < 0 {
		return fmt.Errorf("memstore: product %d stock would be %d", id, stock)
	}
	t.stock[id] = stock
	return nil
}

func (t *tx) CustomerExists(ctx context.Context, id int64) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.customers[id]
	return ok, nil
}

func (t *tx) WorkerExists(ctx context.Context, id int64) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.workers[id]
	return ok, nil
}

func (t *tx) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if !t.inserted[id] && !t.lockedOrders[id] {
		t.s.mu.RLock()
		row := t.s.orders[id]
		t.s.mu.RUnlock()
		if row == nil {
			return nil, domain.ErrNoRecord
		}
		if err := row.lock.lock(ctx); err != nil {
			return nil, err
		}
		t.held = append(t.held, row.lock)
		t.lockedOrders[id] = true
	}
	return t.order(id), nil
}

// order merges committed state with this transaction's pending writes.
func (t *tx) order(id int64) *domain.Order {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	o, ok := t.orders[id]
	if !ok {
		o = t.s.orders[id].o
	}
	o.Items = nil
	for itemID := range t.s.orderItems[id] {
		if t.deleted[itemID] {
			continue
		}
		it := t.s.items[itemID]
		if q, ok := t.qty[itemID]; ok {
			it.Quantity = q
		}
		o.Items = append(o.Items, it)
	}
	for _, it := range t.newItems {
		if it.OrderID == id {
			o.Items = append(o.Items, it)
		}
	}
	sortItems(o.Items)
	return &o
}

func (t *tx) InsertOrder(ctx context.Context, o *domain.Order) error {
	o.ID = t.s.orderSeq.Add(1)
	if o.Version == 0 {
		o.Version = 1
	}
	t.orders[o.ID] = *o
	t.inserted[o.ID] = true
	return nil
}

func (t *tx) InsertItem(ctx context.Context, it *domain.OrderItem) error {
	it.ID = t.s.itemSeq.Add(1)
	t.newItems[it.ID] = *it
	return nil
}

func (t *tx) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	if it, ok := t.newItems[itemID]; ok {
		it.Quantity = quantity
		t.newItems[itemID] = it
		return nil
	}
	if !t.exists(itemID) {
		return domain.ErrNoRecord
	}
	t.qty[itemID] = quantity
	return nil
}

func (t *tx) DeleteItem(ctx context.Context, itemID int64) error {
	if _, ok := t.newItems[itemID]; ok {
		delete(t.newItems, itemID)
		return nil
	}
	if !t.exists(itemID) {
		return domain.ErrNoRecord
	}
	t.deleted[itemID] = true
	delete(t.qty, itemID)
	return nil
}

func (t *tx) exists(itemID int64) bool {
	if t.deleted[itemID] {
		return false
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.items[itemID]
	return ok
}

func (t *tx) UpdateStatus(ctx context.Context, orderID int64, c domain.StatusChange) error {
	o, err := t.LockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	o.Apply(c)
	o.Items = nil
	t.orders[orderID] = *o
	return nil
}

func (t *tx) TouchOrder(ctx context.Context, orderID int64) error {
	o, err := t.LockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	o.Version++
	o.Items = nil
	t.orders[orderID] = *o
	return nil
}
