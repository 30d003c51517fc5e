package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/inventory"
	"github.com/ariefcatur/warehouse-orders/internal/memstore"
)

var errAbort = errors.New("abort")

func seed(stock int) (*memstore.Store, domain.Product) {
	s := memstore.New()
	p := s.PutProduct(domain.Product{Name: "Carton 40x30", Stock: stock, MinStock: 3})
	return s, p
}

func stockOf(t *testing.T, s *memstore.Store, id int64) int {
	t.Helper()
	p, ok := s.Product(id)
	require.True(t, ok)
	return p.Stock
}

type ledgerOp func(ctx context.Context, tx domain.Tx, id int64) (domain.Product, error)

func reserve(n int) ledgerOp {
	return func(ctx context.Context, tx domain.Tx, id int64) (domain.Product, error) {
		return inventory.Ledger{}.Reserve(ctx, tx, id, n)
	}
}

func release(n int) ledgerOp {
	return func(ctx context.Context, tx domain.Tx, id int64) (domain.Product, error) {
		return inventory.Ledger{}.Release(ctx, tx, id, n)
	}
}

func adjust(delta int) ledgerOp {
	return func(ctx context.Context, tx domain.Tx, id int64) (domain.Product, error) {
		return inventory.Ledger{}.Adjust(ctx, tx, id, delta)
	}
}

func TestLedger(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		op        ledgerOp
		wantStock int
		wantKind  domain.Kind
	}{
		{
			name:      "reserve within stock",
			stock:     10,
			op:        reserve(4),
			wantStock: 6,
		},
		{
			name:      "reserve everything",
			stock:     10,
			op:        reserve(10),
			wantStock: 0,
		},
		{
			name:      "reserve beyond stock",
			stock:     10,
			op:        reserve(11),
			wantStock: 10,
			wantKind:  domain.KindInsufficientStock,
		},
		{
			name:      "reserve zero",
			stock:     10,
			op:        reserve(0),
			wantStock: 10,
			wantKind:  domain.KindInvalidInput,
		},
		{
			name:      "release",
			stock:     2,
			op:        release(5),
			wantStock: 7,
		},
		{
			name:      "release negative",
			stock:     2,
			op:        release(-1),
			wantStock: 2,
			wantKind:  domain.KindInvalidInput,
		},
		{
			name:      "adjust up reserves",
			stock:     5,
			op:        adjust(2),
			wantStock: 3,
		},
		{
			name:      "adjust down releases",
			stock:     5,
			op:        adjust(-2),
			wantStock: 7,
		},
		{
			name:      "adjust zero",
			stock:     5,
			op:        adjust(0),
			wantStock: 5,
		},
		{
			name:      "adjust beyond stock",
			stock:     5,
			op:        adjust(6),
			wantStock: 5,
			wantKind:  domain.KindInsufficientStock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, p := seed(tt.stock)
			err := s.WithTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
				_, err := tt.op(ctx, tx, p.ID)
				return err
			})
			if tt.wantKind != "" {
				derr, ok := domain.AsError(err)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, tt.wantKind, derr.Kind)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStock, stockOf(t, s, p.ID))
		})
	}
}

func TestLedgerUnknownProduct(t *testing.T) {
	var l inventory.Ledger
	s, _ := seed(1)
	err := s.WithTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := l.Reserve(ctx, tx, 99, 1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	err = s.WithTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := l.Release(ctx, tx, 99, 1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestLedgerInsufficientStockDetails(t *testing.T) {
	var l inventory.Ledger
	s, p := seed(3)
	err := s.WithTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := l.Reserve(ctx, tx, p.ID, 8)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	derr, _ := domain.AsError(err)
	assert.Equal(t, p.ID, derr.ProductID)
	assert.Equal(t, 3, derr.Available)
	assert.Equal(t, 8, derr.Requested)
}

func TestLedgerRollbackDiscardsChanges(t *testing.T) {
	var l inventory.Ledger
	s, p := seed(10)
	err := s.WithTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if _, err := l.Reserve(ctx, tx, p.ID, 4); err != nil {
			return err
		}
		got, err := l.Reserve(ctx, tx, p.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Stock)
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	assert.Equal(t, 10, stockOf(t, s, p.ID))
}

func TestLedgerConcurrentReserves(t *testing.T) {
	var l inventory.Ledger
	const stock, callers = 25, 80
	s, p := seed(stock)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		lost int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
				_, err := l.Reserve(ctx, tx, p.ID, 1)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, domain.ErrInsufficientStock):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, won)
	assert.Equal(t, callers-stock, lost)
	assert.Equal(t, 0, stockOf(t, s, p.ID))
}

func TestMovementCrossed(t *testing.T) {
	tests := []struct {
		name string
		m    inventory.Movement
		want bool
	}{
		{"drop across minimum", inventory.Movement{Delta: -3, Stock: 2, MinStock: 3}, true},
		{"drop landing on minimum", inventory.Movement{Delta: -3, Stock: 3, MinStock: 3}, false},
		{"already below", inventory.Movement{Delta: -1, Stock: 1, MinStock: 3}, false},
		{"restock", inventory.Movement{Delta: 4, Stock: 2, MinStock: 3}, false},
		{"no minimum", inventory.Movement{Delta: -5, Stock: 0, MinStock: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.Crossed())
		})
	}
}
