package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/orders"
	"github.com/ariefcatur/warehouse-orders/internal/postgres"
)

func setupStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("warehouse"),
		tcpostgres.WithUsername("warehouse"),
		tcpostgres.WithPassword("warehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(dsn))

	pool, err := postgres.Connect(ctx, dsn, 8, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return postgres.NewStore(pool)
}

func TestPostgresWorkflows(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	customer, err := store.InsertCustomer(ctx, domain.Customer{Name: "Acme Retail", Email: "ops@acme.test"})
	require.NoError(t, err)
	worker, err := store.InsertWorker(ctx, domain.Worker{Name: "Dana", Role: "picker"})
	require.NoError(t, err)
	newProduct := func(t *testing.T, stock int) domain.Product {
		t.Helper()
		p, err := store.InsertProduct(ctx, domain.Product{Name: "Pallet wrap", Stock: stock, Price: decimal.RequireFromString("5.00"), MinStock: 2})
		require.NoError(t, err)
		return p
	}
	stock := func(t *testing.T, id int64) int {
		t.Helper()
		n, err := store.Stock(ctx, id)
		require.NoError(t, err)
		return n
	}
	svc := orders.NewService(store, zap.NewNop())
	create := func(items ...domain.ItemInput) (*domain.Order, error) {
		return svc.CreateOrder(ctx, orders.CreateOrderInput{CustomerID: customer.ID, Items: items})
	}

	t.Run("create then adjust", func(t *testing.T) {
		p := newProduct(t, 10)
		o, err := create(domain.ItemInput{ProductID: p.ID, Quantity: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, stock(t, p.ID))
		assert.Equal(t, int64(1), o.Version)

		_, err = svc.UpdateItemQuantity(ctx, o.ID, o.Items[0].ID, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, stock(t, p.ID))
		_, err = svc.UpdateItemQuantity(ctx, o.ID, o.Items[0].ID, 1)
		require.NoError(t, err)
		assert.Equal(t, 9, stock(t, p.ID))

		got, err := svc.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, 1, got.Items[0].Quantity)
		assert.Equal(t, int64(3), got.Version)
		assert.Equal(t, "Pallet wrap", got.Items[0].ProductName)
		assert.True(t, decimal.RequireFromString("5").Equal(got.Items[0].PriceAtOrder))
	})

	t.Run("failed create leaves nothing behind", func(t *testing.T) {
		p := newProduct(t, 10)
		before, err := store.ListOrders(ctx, domain.OrderFilter{CustomerID: customer.ID, Limit: 1000})
		require.NoError(t, err)

		_, err = create(domain.ItemInput{ProductID: p.ID, Quantity: 3}, domain.ItemInput{ProductID: p.ID, Quantity: 20})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, 10, stock(t, p.ID))

		after, err := store.ListOrders(ctx, domain.OrderFilter{CustomerID: customer.ID, Limit: 1000})
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("item guards", func(t *testing.T) {
		p := newProduct(t, 10)
		o, err := create(domain.ItemInput{ProductID: p.ID, Quantity: 2})
		require.NoError(t, err)

		err = svc.RemoveItem(ctx, o.ID, o.Items[0].ID)
		require.ErrorIs(t, err, domain.ErrLastItem)

		added, err := svc.AddItem(ctx, o.ID, p.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, 4, stock(t, p.ID))
		require.NoError(t, svc.RemoveItem(ctx, o.ID, added.ID))
		assert.Equal(t, 8, stock(t, p.ID))

		_, err = svc.AdvanceStatus(ctx, o.ID, domain.StatusPicked, &worker.ID)
		require.NoError(t, err)
		_, err = svc.AddItem(ctx, o.ID, p.ID, 1)
		require.ErrorIs(t, err, domain.ErrInvalidState)

		got, err := svc.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPicked, got.Status)
		require.NotNil(t, got.PickerID)
		assert.Equal(t, worker.ID, *got.PickerID)
		assert.NotNil(t, got.PickedAt)
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		p := newProduct(t, 15)
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			won  int
			errs []error
		)
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := create(domain.ItemInput{ProductID: p.ID, Quantity: 1})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					won++
				} else if !errors.Is(err, domain.ErrInsufficientStock) {
					errs = append(errs, err)
				}
			}()
		}
		wg.Wait()
		assert.Empty(t, errs)
		assert.Equal(t, 15, won)
		assert.Equal(t, 0, stock(t, p.ID))
	})

	t.Run("opposite product order does not deadlock", func(t *testing.T) {
		a, b := newProduct(t, 100), newProduct(t, 100)
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			items := []domain.ItemInput{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
			if i%2 == 1 {
				items[0], items[1] = items[1], items[0]
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := create(items...)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, 80, stock(t, a.ID))
		assert.Equal(t, 80, stock(t, b.ID))
	})

	t.Run("unknown rows", func(t *testing.T) {
		_, err := store.GetOrder(ctx, 987654)
		assert.ErrorIs(t, err, domain.ErrNoRecord)
		_, err = store.Stock(ctx, 987654)
		assert.ErrorIs(t, err, domain.ErrNoRecord)
	})
}
