package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/warehouse-orders/internal/config"
	"github.com/ariefcatur/warehouse-orders/internal/domain"
	"github.com/ariefcatur/warehouse-orders/internal/httpx"
	kafkax "github.com/ariefcatur/warehouse-orders/internal/kafka"
	"github.com/ariefcatur/warehouse-orders/internal/memstore"
	"github.com/ariefcatur/warehouse-orders/internal/orders"
	"github.com/ariefcatur/warehouse-orders/internal/postgres"
	"github.com/ariefcatur/warehouse-orders/internal/redisx"
	"github.com/ariefcatur/warehouse-orders/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := telemetry.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("order api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics := telemetry.NewMetrics()

	// Store
	var store domain.Store
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		store = memstore.New()
	default:
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return err
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresConns, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		store = postgres.NewStore(db)
	}

	opts := []orders.Option{
		orders.WithMetrics(metrics),
		orders.WithProducerName(cfg.ServiceName),
	}

	// Kafka producers
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		orderProd := kafkax.NewProducer(cfg.KafkaBrokers, domain.TopicOrders, 1024, logger)
		stockProd := kafkax.NewProducer(cfg.KafkaBrokers, domain.TopicStockAdjusted, 1024, logger)
		orderProd.Start(ctx)
		stockProd.Start(ctx)
		producers = append(producers, orderProd, stockProd)
		opts = append(opts, orders.WithEvents(orderProd, stockProd))
	}

	handler := &httpx.OrdersHandler{Logger: logger}

	// Redis
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		opts = append(opts, orders.WithCache(redisx.NewOrderCache(rdb, logger)))
		handler.Idem = redisx.NewIdempotency(rdb)
	}

	handler.Service = orders.NewService(store, logger, opts...)
	router := httpx.NewRouter(cfg.RequestTimeout)
	router.Handle("/metrics", metrics.Handler())
	handler.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.Instrument(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	for _, p := range producers {
		p.Close()
	}
	for _, p := range producers {
		p.WaitClosed()
	}
	return nil
}
