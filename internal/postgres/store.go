package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
)

// querier is implemented by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL. Row locks are taken with
// SELECT ... FOR UPDATE and held until the surrounding transaction ends.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// A cancelled ctx must not prevent the rollback from reaching the server.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const orderColumns = `id, customer_id, status, version, created_at, picker_id, packer_id, picked_at, packed_at, shipped_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.Version, &o.CreatedAt,
		&o.PickerID, &o.PackerID, &o.PickedAt, &o.PackedAt, &o.ShippedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	o.Items = []domain.OrderItem{}
	return &o, nil
}

// loadItems fills Items for every order in byID. Product names come from a
// join so the read model reflects the catalogue.
func loadItems(ctx context.Context, q querier, byID map[int64]*domain.Order) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	rows, err := q.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price_at_order::text
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it    domain.OrderItem
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return err
		}
		if it.PriceAtOrder, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("item %d price %q: %w", it.ID, price, err)
		}
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, s.DB, map[int64]*domain.Order{o.ID: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text = '' OR status = $1::text)
		  AND ($2::bigint = 0 OR customer_id = $2::bigint)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, string(f.Status), f.CustomerID, f.Limit)
	if err != nil {
		return nil, err
	}
	var (
		list []*domain.Order
		byID = map[int64]*domain.Order{}
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, o)
		byID[o.ID] = o
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadItems(ctx, s.DB, byID); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(list))
	for _, o := range list {
		out = append(out, *o)
	}
	return out, nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, COALESCE(code, ''), name, COALESCE(description, ''), COALESCE(category, ''),
		       COALESCE(supplier, ''), stock, price::text, min_stock
		FROM products
		WHERE id=$1
		FOR UPDATE`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Category,
		&p.Supplier, &p.Stock, &price, &p.MinStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNoRecord
	}
	if err != nil {
		return domain.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Product{}, fmt.Errorf("product %d price %q: %w", id, price, err)
	}
	return p, nil
}

func (t *pgTx) LockProducts(ctx context.Context, ids []int64) error {
	rows, err := t.tx.Query(ctx, `SELECT id FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	_, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	return err
}

func (t *pgTx) SetStock(ctx context.Context, id int64, stock int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, id, stock)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNoRecord
	}
	return nil
}

func (t *pgTx) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, query, id).Scan(&ok)
	return ok, err
}

func (t *pgTx) CustomerExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id=$1)`, id)
}

func (t *pgTx) WorkerExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM workers WHERE id=$1)`, id)
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, t.tx, map[int64]*domain.Order{o.ID: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO orders (customer_id, status, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, version`, o.CustomerID, string(o.Status), o.CreatedAt).Scan(&o.ID, &o.Version)
}

func (t *pgTx) TouchOrder(ctx context.Context, orderID int64) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET version = version + 1 WHERE id=$1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNoRecord
	}
	return nil
}

func (t *pgTx) InsertItem(ctx context.Context, it *domain.OrderItem) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_order)
		VALUES ($1, $2, $3, $4::numeric)
		RETURNING id`, it.OrderID, it.ProductID, it.Quantity, it.PriceAtOrder.String()).Scan(&it.ID)
}

func (t *pgTx) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE order_items SET quantity=$2 WHERE id=$1`, itemID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNoRecord
	}
	return nil
}

func (t *pgTx) DeleteItem(ctx context.Context, itemID int64) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNoRecord
	}
	return nil
}

// UpdateStatus writes every stage column through a fixed set of conditional
// assignments; only the columns belonging to c.To change.
func (t *pgTx) UpdateStatus(ctx context.Context, orderID int64, c domain.StatusChange) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET
			status     = $2::text,
			picker_id  = CASE WHEN $2::text = 'picked'  THEN $3::bigint      ELSE picker_id  END,
			picked_at  = CASE WHEN $2::text = 'picked'  THEN $4::timestamptz ELSE picked_at  END,
			packer_id  = CASE WHEN $2::text = 'packed'  THEN $3::bigint      ELSE packer_id  END,
			packed_at  = CASE WHEN $2::text = 'packed'  THEN $4::timestamptz ELSE packed_at  END,
			shipped_at = CASE WHEN $2::text = 'shipped' THEN $4::timestamptz ELSE shipped_at END
		WHERE id=$1`, orderID, string(c.To), c.WorkerID, c.At)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNoRecord
	}
	return nil
}

// Seeding helpers. They bypass the workflow and exist for tests and local setup.

func (s *Store) InsertProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO products (code, name, description, category, supplier, stock, price, min_stock)
		VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7::numeric, $8)
		RETURNING id`,
		p.Code, p.Name, p.Description, p.Category, p.Supplier, p.Stock, p.Price.String(), p.MinStock,
	).Scan(&p.ID)
	return p, err
}

func (s *Store) InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone, address)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		RETURNING id`, c.Name, c.Email, c.Phone, c.Address).Scan(&c.ID)
	return c, err
}

func (s *Store) InsertWorker(ctx context.Context, w domain.Worker) (domain.Worker, error) {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO workers (name, role) VALUES ($1, NULLIF($2, '')) RETURNING id`,
		w.Name, w.Role).Scan(&w.ID)
	return w, err
}

// Stock reads the committed stock of a product.
func (s *Store) Stock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := s.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNoRecord
	}
	return stock, err
}
