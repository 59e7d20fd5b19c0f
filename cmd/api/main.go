package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/gift-orders/internal/audit"
	"github.com/ariefcatur/gift-orders/internal/config"
	"github.com/ariefcatur/gift-orders/internal/httpx"
	"github.com/ariefcatur/gift-orders/internal/inventory"
	kafkax "github.com/ariefcatur/gift-orders/internal/kafka"
	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/memstore"
	"github.com/ariefcatur/gift-orders/internal/notify"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/payouts"
	"github.com/ariefcatur/gift-orders/internal/postgres"
	"github.com/ariefcatur/gift-orders/internal/redisx"
	"github.com/ariefcatur/gift-orders/internal/transition"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var store transition.Store
	switch cfg.Store {
	case config.StoreMemory:
		ms := memstore.New()
		memstore.SeedDemo(ms)
		store = ms
		logger.Warn("using in-memory store, data is lost on exit")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		store = &postgres.Store{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		logger.Warn("redis unavailable, cache and idempotency degrade to pass-through", zap.Error(err))
	}

	// Kafka producers: per-order changes and batch summaries
	pChanges := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStatusChanged, 1024, logger)
	pChanges.Start(ctx)
	pBatches := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStatusBatch, 256, logger)
	pBatches.Start(ctx)

	orch, err := transition.New(transition.Deps{
		Store:   store,
		Ledger:  inventory.NewLedger(logger),
		Payouts: payouts.NewManager(payouts.PolicyFromConfig(cfg.Payout), logger),
		Audit:   audit.New(audit.Options{Timeout: cfg.Timeouts.Audit, Logger: logger}),
		Notifier: &notify.KafkaTrigger{
			Changes:  pChanges,
			Batches:  pBatches,
			Producer: cfg.ServiceName,
		},
		Logger:          logger,
		NotifyTimeout:   cfg.Timeouts.Notify,
		BulkConcurrency: cfg.Bulk.Concurrency,
		BulkMaxOrders:   cfg.Bulk.MaxOrders,
	})
	if err != nil {
		logger.Fatal("orchestrator", zap.Error(err))
	}

	router := httpx.NewRouter(cfg.Timeouts.Request + 5*time.Second)
	(&httpx.AdminHandler{
		Orch:    orch,
		Cache:   redisx.NewStatusCache(rdb, redisx.TTLStatusCache, logger),
		Idem:    redisx.NewIdempotency(rdb, redisx.TTLIdempotency),
		Log:     logger,
		Timeout: cfg.Timeouts.Request,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pChanges.Close() // close inbox -> flush & close writer
	pBatches.Close()
	cancel()
	pChanges.WaitClosed()
	pBatches.WaitClosed()
}
