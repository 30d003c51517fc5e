package inventory

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/domain"
	kafkax "github.com/ariefcatur/warehouse-orders/internal/kafka"
	"github.com/ariefcatur/warehouse-orders/internal/redisx"
	"github.com/ariefcatur/warehouse-orders/internal/telemetry"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service watches committed stock movements and raises an alert when a
// product drops below its minimum stock.
type Service struct {
	Redis       redis.Cmdable // optional; without it events are not deduplicated
	Alerts      Publisher
	Metrics     *telemetry.Metrics
	Logger      *zap.Logger
	ServiceName string
}

// HandleStockAdjusted is installed as the consumer handler.
func (s *Service) HandleStockAdjusted(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != domain.EventStockAdjusted {
		return nil
	}

	if s.Redis != nil {
		won, err := redisx.Claim(ctx, s.Redis, fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID), redisx.TTLDedup)
		if err != nil {
			s.Logger.Warn("dedup claim failed, processing anyway", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !won {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[domain.StockAdjustedPayload](env.Payload)
	if err != nil {
		return err
	}
	mv := Movement{ProductID: p.ProductID, Delta: p.Delta, Stock: p.Stock, MinStock: p.MinStock}

	if mv.Stock >= mv.MinStock {
		s.clear(ctx, mv.ProductID)
		return nil
	}
	if !mv.Crossed() {
		return nil
	}
	s.alert(ctx, env, mv)
	return nil
}

func (s *Service) alert(ctx context.Context, cause domain.Envelope, mv Movement) {
	s.Logger.Warn("product below minimum stock",
		zap.Int64("product_id", mv.ProductID),
		zap.Int("stock", mv.Stock),
		zap.Int("min_stock", mv.MinStock),
		zap.String("cause_event_id", cause.EventID),
	)
	s.Metrics.LowStockAlert()

	if s.Redis != nil {
		key := fmt.Sprintf(redisx.KeyLowStock, mv.ProductID)
		if err := s.Redis.Set(ctx, key, mv.Stock, redisx.TTLLowStock).Err(); err != nil {
			s.Logger.Warn("record low stock", zap.Int64("product_id", mv.ProductID), zap.Error(err))
		}
	}
	if s.Alerts == nil {
		return
	}
	env := kafkax.NewEnvelope(domain.EventStockLow, s.ServiceName, cause.TraceID, mv.ProductID, domain.StockLowPayload{
		ProductID: mv.ProductID,
		Stock:     mv.Stock,
		MinStock:  mv.MinStock,
	})
	s.Alerts.Publish(domain.PartitionKey(mv.ProductID), kafkax.MustMarshal(env), kafkax.Headers(domain.EventStockLow)...)
}

func (s *Service) clear(ctx context.Context, productID int64) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyLowStock, productID)).Err(); err != nil {
		s.Logger.Warn("clear low stock", zap.Int64("product_id", productID), zap.Error(err))
	}
}
