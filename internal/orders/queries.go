package orders

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// GetOrder returns the committed read model of one order.
func (s *Service) GetOrder(ctx context.Context, id int64) (_ *domain.Order, err error) {
	ctx, done := s.begin(ctx, "get_order", attribute.Int64("order_id", id))
	defer func() { err = done(err) }()

	if s.cache != nil {
		if o, ok := s.cache.Get(ctx, id); ok {
			return o, nil
		}
	}
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, domain.ErrNoRecord) {
		return nil, domain.OrderNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, o)
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, f domain.OrderFilter) (_ []domain.Order, err error) {
	ctx, done := s.begin(ctx, "list_orders")
	defer func() { err = done(err) }()

	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.InvalidInput("unknown status %q", f.Status)
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	out, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// AdvanceStatus moves an order one stage along pending → picked → packed →
// shipped. workerID records the picker or packer and is ignored for shipped.
func (s *Service) AdvanceStatus(ctx context.Context, orderID int64, to domain.Status, workerID *int64) (_ *domain.Order, err error) {
	ctx, done := s.begin(ctx, "advance_status",
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(to)),
	)
	defer func() { err = done(err) }()

	if !to.Valid() {
		return nil, domain.InvalidInput("unknown status %q", to)
	}

	var (
		order *domain.Order
		from  domain.Status
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = o.Status
		if !domain.CanTransition(o.Status, to) {
			return domain.InvalidState("order %d cannot move from %s to %s", orderID, o.Status, to)
		}
		if to == domain.StatusShipped {
			workerID = nil
		}
		if workerID != nil {
			ok, err := tx.WorkerExists(ctx, *workerID)
			if err != nil {
				return fmt.Errorf("lookup worker %d: %w", *workerID, err)
			}
			if !ok {
				return domain.InvalidInput("worker %d not found", *workerID)
			}
		}
		change := domain.StatusChange{To: to, WorkerID: workerID, At: s.now()}
		if err := tx.UpdateStatus(ctx, orderID, change); err != nil {
			return fmt.Errorf("update status of order %d: %w", orderID, err)
		}
		order, err = s.touch(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.statusChanged(ctx, order, from)
	return order, nil
}
