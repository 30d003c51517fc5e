package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/inventory"
	"github.com/ariefcatur/warehouse-orders/internal/telemetry"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Cache holds order read models. Set keeps whichever copy of an order has the
// higher Version: a read that raced with a commit must not replace the model
// the commit wrote. Implementations swallow their own errors.
type Cache interface {
	Get(ctx context.Context, id int64) (*domain.Order, bool)
	Set(ctx context.Context, o *domain.Order)
}

// Service coordinates the stock ledger and the order aggregate. Each workflow
// runs in exactly one store transaction and returns either its result or a
// single *domain.Error; effects of a failed workflow are never visible.
type Service struct {
	store  domain.Store
	ledger inventory.Ledger
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	metrics     *telemetry.Metrics
	cache       Cache
	orderEvents Publisher
	stockEvents Publisher
	producer    string
}

type Option func(*Service)

// WithClock replaces the clock used for order and stage timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

// WithEvents sets where committed order and stock events go; either may be nil.
func WithEvents(orderEvents, stockEvents Publisher) Option {
	return func(s *Service) {
		s.orderEvents = orderEvents
		s.stockEvents = stockEvents
	}
}

func WithProducerName(name string) Option { return func(s *Service) { s.producer = name } }

func NewService(store domain.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   logger,
		tracer:   otel.Tracer("github.com/ariefcatur/warehouse-orders/internal/orders"),
		now:      func() time.Time { return time.Now().UTC() },
		producer: "order-api",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin opens the span for one operation. The returned func must see the
// operation's final error; it converts anything that is not a *domain.Error
// into Internal, logging the cause.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error) error) {
	ctx, span := s.tracer.Start(ctx, "orders."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) error {
		defer span.End()
		outcome := "ok"
		if err != nil {
			derr := s.classify(op, err, attrs)
			outcome = string(derr.Kind)
			span.RecordError(err)
			span.SetStatus(codes.Error, derr.Message)
			err = derr
		}
		s.metrics.ObserveWorkflow(op, outcome, time.Since(start))
		return err
	}
}

func (s *Service) classify(op string, err error, attrs []attribute.KeyValue) *domain.Error {
	if derr, ok := domain.AsError(err); ok {
		return derr
	}
	fields := make([]zap.Field, 0, len(attrs)+2)
	fields = append(fields, zap.String("op", op), zap.Error(err))
	for _, a := range attrs {
		fields = append(fields, zap.Any(string(a.Key), a.Value.AsInterface()))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("workflow aborted, rolled back", fields...)
	} else {
		s.logger.Error("workflow failed, rolled back", fields...)
	}
	return domain.Internal()
}

func (s *Service) lockOrder(ctx context.Context, tx domain.Tx, orderID int64) (*domain.Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNoRecord) {
		return nil, domain.OrderNotFound(orderID)
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) lockEditable(ctx context.Context, tx domain.Tx, orderID int64) (*domain.Order, error) {
	o, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsEditable() {
		return nil, domain.InvalidState("order %d is %s; items can only change while it is %s", orderID, o.Status, domain.StatusPending)
	}
	return o, nil
}

// touch bumps the order's version and returns the order as it will be
// committed. It is the last store call of every workflow that changes an
// existing order.
func (s *Service) touch(ctx context.Context, tx domain.Tx, orderID int64) (*domain.Order, error) {
	if err := tx.TouchOrder(ctx, orderID); err != nil {
		return nil, fmt.Errorf("touch order %d: %w", orderID, err)
	}
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order %d: %w", orderID, err)
	}
	return o, nil
}

func findItem(o *domain.Order, itemID int64) (domain.OrderItem, bool) {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return domain.OrderItem{}, false
}
