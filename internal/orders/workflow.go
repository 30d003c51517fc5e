package orders

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/inventory"
)

type CreateOrderInput struct {
	CustomerID int64              `json:"customerId"`
	Items      []domain.ItemInput `json:"items"`
}

// CreateOrder reserves stock for every requested line and records the order.
// Items are processed in the given order; the first failing line aborts the
// whole call and no stock or rows change.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (_ *domain.Order, err error) {
	ctx, done := s.begin(ctx, "create_order",
		attribute.Int64("customer_id", in.CustomerID),
		attribute.Int("items", len(in.Items)),
	)
	defer func() { err = done(err) }()

	var (
		order *domain.Order
		moves []inventory.Movement
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		moves = moves[:0]

		ok, err := tx.CustomerExists(ctx, in.CustomerID)
		if err != nil {
			return fmt.Errorf("lookup customer %d: %w", in.CustomerID, err)
		}
		if !ok {
			return domain.CustomerNotFound(in.CustomerID)
		}
		if len(in.Items) == 0 {
			return domain.InvalidInput("order must have at least one item")
		}

		ids := make([]int64, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.ProductID)
		}
		if err := s.ledger.LockAll(ctx, tx, ids); err != nil {
			return err
		}

		items := make([]domain.OrderItem, 0, len(in.Items))
		for i, it := range in.Items {
			if it.Quantity <= 0 {
				return domain.InvalidInput("items[%d]: quantity must be positive, got %d", i, it.Quantity)
			}
			p, err := s.ledger.Reserve(ctx, tx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			moves = append(moves, inventory.MovementOf(p, -it.Quantity))
			items = append(items, domain.OrderItem{
				ProductID:    p.ID,
				ProductName:  p.Name,
				Quantity:     it.Quantity,
				PriceAtOrder: p.Price,
			})
		}

		o := &domain.Order{
			CustomerID: in.CustomerID,
			Status:     domain.StatusPending,
			CreatedAt:  s.now(),
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i := range items {
			items[i].OrderID = o.ID
			if err := tx.InsertItem(ctx, &items[i]); err != nil {
				return fmt.Errorf("insert item %d of order %d: %w", i, o.ID, err)
			}
		}
		o.Items = items
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
		zap.Int("items", len(order.Items)),
	)
	s.orderCreated(ctx, order, moves)
	return order, nil
}

// AddItem reserves stock for a new line on a pending order.
func (s *Service) AddItem(ctx context.Context, orderID, productID int64, quantity int) (_ *domain.OrderItem, err error) {
	ctx, done := s.begin(ctx, "add_item",
		attribute.Int64("order_id", orderID),
		attribute.Int64("product_id", productID),
		attribute.Int("quantity", quantity),
	)
	defer func() { err = done(err) }()

	var (
		item domain.OrderItem
		move inventory.Movement
		view *domain.Order
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := s.lockEditable(ctx, tx, orderID); err != nil {
			return err
		}
		if quantity <= 0 {
			return domain.InvalidInput("quantity must be positive, got %d", quantity)
		}
		p, err := s.ledger.Reserve(ctx, tx, productID, quantity)
		if err != nil {
			return err
		}
		item = domain.OrderItem{
			OrderID:      orderID,
			ProductID:    p.ID,
			ProductName:  p.Name,
			Quantity:     quantity,
			PriceAtOrder: p.Price,
		}
		if err := tx.InsertItem(ctx, &item); err != nil {
			return fmt.Errorf("insert item on order %d: %w", orderID, err)
		}
		move = inventory.MovementOf(p, -quantity)
		view, err = s.touch(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.itemChanged(ctx, domain.EventOrderItemAdded, view, item, &move)
	return &item, nil
}

// UpdateItemQuantity moves an item to newQuantity, reserving or releasing the
// difference. Setting the current quantity again succeeds without effect.
func (s *Service) UpdateItemQuantity(ctx context.Context, orderID, itemID int64, newQuantity int) (_ *domain.OrderItem, err error) {
	ctx, done := s.begin(ctx, "update_item_quantity",
		attribute.Int64("order_id", orderID),
		attribute.Int64("item_id", itemID),
		attribute.Int("quantity", newQuantity),
	)
	defer func() { err = done(err) }()

	var (
		item domain.OrderItem
		move *inventory.Movement
		view *domain.Order
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := s.lockEditable(ctx, tx, orderID)
		if err != nil {
			return err
		}
		var ok bool
		if item, ok = findItem(o, itemID); !ok {
			return domain.ItemNotFound(orderID, itemID)
		}
		if newQuantity <= 0 {
			return domain.InvalidInput("quantity must be positive, got %d", newQuantity)
		}

		delta := newQuantity - item.Quantity
		if delta == 0 {
			return nil
		}
		p, err := s.ledger.Adjust(ctx, tx, item.ProductID, delta)
		if err != nil {
			return err
		}
		if err := tx.UpdateItemQuantity(ctx, itemID, newQuantity); err != nil {
			return fmt.Errorf("update item %d: %w", itemID, err)
		}
		item.Quantity = newQuantity
		m := inventory.MovementOf(p, -delta)
		move = &m
		view, err = s.touch(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if move != nil {
		s.itemChanged(ctx, domain.EventOrderItemUpdated, view, item, move)
	}
	return &item, nil
}

// RemoveItem deletes a line and returns its quantity to stock. The last line
// of an order cannot be removed.
func (s *Service) RemoveItem(ctx context.Context, orderID, itemID int64) (err error) {
	ctx, done := s.begin(ctx, "remove_item",
		attribute.Int64("order_id", orderID),
		attribute.Int64("item_id", itemID),
	)
	defer func() { err = done(err) }()

	var (
		item domain.OrderItem
		move inventory.Movement
		view *domain.Order
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := s.lockEditable(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.ItemCount() <= 1 {
			return domain.LastItem(orderID)
		}
		var ok bool
		if item, ok = findItem(o, itemID); !ok {
			return domain.ItemNotFound(orderID, itemID)
		}
		p, err := s.ledger.Release(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return fmt.Errorf("delete item %d: %w", itemID, err)
		}
		move = inventory.MovementOf(p, item.Quantity)
		view, err = s.touch(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return err
	}

	s.itemChanged(ctx, domain.EventOrderItemRemoved, view, item, &move)
	return nil
}
