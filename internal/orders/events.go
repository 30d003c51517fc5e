package orders

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/inventory"
	kafkax "github.com/ariefcatur/warehouse-orders/internal/kafka"
)

// The hooks below run only after a commit. They never fail the workflow.

func (s *Service) orderCreated(ctx context.Context, o *domain.Order, moves []inventory.Movement) {
	s.cacheOrder(ctx, o)
	s.publish(ctx, s.orderEvents, o.ID, domain.EventOrderCreated, domain.OrderCreatedPayload{Order: o})
	for _, m := range moves {
		s.stockAdjusted(ctx, o.ID, m)
	}
}

func (s *Service) itemChanged(ctx context.Context, eventType string, view *domain.Order, it domain.OrderItem, m *inventory.Movement) {
	s.cacheOrder(ctx, view)
	s.publish(ctx, s.orderEvents, it.OrderID, eventType, domain.OrderItemPayload{
		OrderID:   it.OrderID,
		ItemID:    it.ID,
		ProductID: it.ProductID,
		Quantity:  it.Quantity,
		Price:     it.PriceAtOrder,
	})
	if m != nil {
		s.stockAdjusted(ctx, it.OrderID, *m)
	}
}

func (s *Service) statusChanged(ctx context.Context, o *domain.Order, from domain.Status) {
	s.cacheOrder(ctx, o)
	var worker *int64
	switch o.Status {
	case domain.StatusPicked:
		worker = o.PickerID
	case domain.StatusPacked:
		worker = o.PackerID
	}
	s.publish(ctx, s.orderEvents, o.ID, domain.EventOrderStatusChanged, domain.OrderStatusChangedPayload{
		OrderID:  o.ID,
		From:     from,
		To:       o.Status,
		WorkerID: worker,
	})
}

// cacheOrder writes the committed read model rather than dropping the entry,
// so a concurrent GetOrder holding an older copy cannot repopulate it.
func (s *Service) cacheOrder(ctx context.Context, o *domain.Order) {
	if s.cache != nil && o != nil {
		s.cache.Set(ctx, o)
	}
}

func (s *Service) stockAdjusted(ctx context.Context, orderID int64, m inventory.Movement) {
	if s.stockEvents == nil {
		return
	}
	env := kafkax.NewEnvelope(domain.EventStockAdjusted, s.producer, traceID(ctx), orderID, domain.StockAdjustedPayload{
		ProductID: m.ProductID,
		OrderID:   orderID,
		Delta:     m.Delta,
		Stock:     m.Stock,
		MinStock:  m.MinStock,
	})
	s.stockEvents.Publish(domain.PartitionKey(m.ProductID), kafkax.MustMarshal(env), kafkax.Headers(domain.EventStockAdjusted)...)
}

func (s *Service) publish(ctx context.Context, p Publisher, orderID int64, eventType string, payload any) {
	if p == nil {
		return
	}
	env := kafkax.NewEnvelope(eventType, s.producer, traceID(ctx), orderID, payload)
	p.Publish(domain.PartitionKey(orderID), kafkax.MustMarshal(env), kafkax.Headers(eventType)...)
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
