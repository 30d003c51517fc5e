// Package memstore is an in-process implementation of domain.Store. Rows live
// in maps guarded by one RWMutex; each product and order row additionally has
// its own lock, held by a transaction from first touch until it ends, which
// mirrors SELECT ... FOR UPDATE. Transaction writes are buffered and applied
// in one step on commit.
package memstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
)

type rowLock chan struct{}

func newRowLock() rowLock { return make(chan struct{}, 1) }

func (l rowLock) lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l rowLock) unlock() { <-l }

type productRow struct {
	p    domain.Product
	lock rowLock
}

type orderRow struct {
	o    domain.Order
	lock rowLock
}

type Store struct {
	mu         sync.RWMutex
	customers  map[int64]domain.Customer
	workers    map[int64]domain.Worker
	products   map[int64]*productRow
	orders     map[int64]*orderRow
	items      map[int64]domain.OrderItem
	orderItems map[int64]map[int64]struct{}

	productSeq  atomic.Int64
	customerSeq atomic.Int64
	workerSeq   atomic.Int64
	orderSeq    atomic.Int64
	itemSeq     atomic.Int64
}

func New() *Store {
	return &Store{
		customers:  map[int64]domain.Customer{},
		workers:    map[int64]domain.Worker{},
		products:   map[int64]*productRow{},
		orders:     map[int64]*orderRow{},
		items:      map[int64]domain.OrderItem{},
		orderItems: map[int64]map[int64]struct{}{},
	}
}

// PutProduct inserts or replaces a product outside any transaction. A zero ID
// allocates one. It is meant for seeding and administrative edits.
func (s *Store) PutProduct(p domain.Product) domain.Product {
	if p.ID == 0 {
		p.ID = s.productSeq.Add(1)
	} else {
		advance(&s.productSeq, p.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.products[p.ID]; ok {
		row.p = p
		return p
	}
	s.products[p.ID] = &productRow{p: p, lock: newRowLock()}
	return p
}

// advance moves seq forward to at least id so allocated ids never collide
// with explicitly chosen ones.
func advance(seq *atomic.Int64, id int64) {
	for {
		cur := seq.Load()
		if cur >= id || seq.CompareAndSwap(cur, id) {
			return
		}
	}
}

func (s *Store) PutCustomer(c domain.Customer) domain.Customer {
	if c.ID == 0 {
		c.ID = s.customerSeq.Add(1)
	} else {
		advance(&s.customerSeq, c.ID)
	}
	s.mu.Lock()
	s.customers[c.ID] = c
	s.mu.Unlock()
	return c
}

func (s *Store) PutWorker(w domain.Worker) domain.Worker {
	if w.ID == 0 {
		w.ID = s.workerSeq.Add(1)
	} else {
		advance(&s.workerSeq, w.ID)
	}
	s.mu.Lock()
	s.workers[w.ID] = w
	s.mu.Unlock()
	return w
}

// Product returns the committed state of a product.
func (s *Store) Product(id int64) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return row.p, true
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNoRecord
	}
	return s.assemble(row.o), nil
}

func (s *Store) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, row := range s.orders {
		if f.Status != "" && row.o.Status != f.Status {
			continue
		}
		if f.CustomerID != 0 && row.o.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, *s.assemble(row.o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// assemble must be called with s.mu held.
func (s *Store) assemble(o domain.Order) *domain.Order {
	o.Items = make([]domain.OrderItem, 0, len(s.orderItems[o.ID]))
	for id := range s.orderItems[o.ID] {
		o.Items = append(o.Items, s.items[id])
	}
	sortItems(o.Items)
	return &o
}

func sortItems(items []domain.OrderItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
