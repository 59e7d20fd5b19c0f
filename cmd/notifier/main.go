package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/gift-orders/internal/config"
	kafkax "github.com/ariefcatur/gift-orders/internal/kafka"
	"github.com/ariefcatur/gift-orders/internal/logging"
	"github.com/ariefcatur/gift-orders/internal/notify"
	"github.com/ariefcatur/gift-orders/internal/orders"
	"github.com/ariefcatur/gift-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-notifier")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Notifier.WebhookURL == "" {
		logger.Fatal("NOTIFY_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	fwd := &notify.Forwarder{
		Sender: notify.NewWebhook(cfg.Notifier.WebhookURL, cfg.Timeouts.Notify),
		Dedup:  redisx.NewDeduper(rdb),
		Log:    logger,
	}

	topics := []string{orders.TopicStatusChanged, orders.TopicStatusBatch}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Notifier.Group, topics, cfg.Notifier.Workers, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("notifier consumer started",
			zap.String("group", cfg.Notifier.Group),
			zap.Strings("topics", topics),
			zap.Int("workers", cfg.Notifier.Workers),
		)
		if err := cons.Start(ctx, fwd.HandleMessage); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	<-done
}
