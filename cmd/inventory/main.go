package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/config"
	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/inventory"
	kafkax "github.com/ariefcatur/warehouse-orders/internal/kafka"
	"github.com/ariefcatur/warehouse-orders/internal/redisx"
	"github.com/ariefcatur/warehouse-orders/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	name := cfg.ServiceName + "-inventory"
	logger, err := telemetry.NewLogger(name, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	alerts := kafkax.NewProducer(cfg.KafkaBrokers, domain.TopicStockLow, 256, logger)
	alerts.Start(ctx)

	svc := &inventory.Service{
		Alerts:      alerts,
		Metrics:     telemetry.NewMetrics(),
		Logger:      logger,
		ServiceName: name,
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		svc.Redis = rdb
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, domain.TopicStockAdjusted, cfg.InventoryWorkers, logger)
	logger.Info("inventory consumer started",
		zap.String("group", cfg.InventoryGroup),
		zap.String("topic", domain.TopicStockAdjusted),
		zap.Int("workers", cfg.InventoryWorkers),
	)
	if err := cons.Start(ctx, svc.HandleStockAdjusted); err != nil {
		logger.Error("consumer exit", zap.Error(err))
	}

	logger.Info("shutting down consumer")
	alerts.Close()
	alerts.WaitClosed()
}
