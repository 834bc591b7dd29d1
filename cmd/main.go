package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/funnycal/fulfillment/internal/artifacts"
	"github.com/funnycal/fulfillment/internal/config"
	"github.com/funnycal/fulfillment/internal/events"
	"github.com/funnycal/fulfillment/internal/fulfillment"
	"github.com/funnycal/fulfillment/internal/logger"
	"github.com/funnycal/fulfillment/internal/notify"
	"github.com/funnycal/fulfillment/internal/reconcile"
	"github.com/funnycal/fulfillment/internal/server"
	"github.com/funnycal/fulfillment/internal/storage"
	"github.com/funnycal/fulfillment/internal/stripe"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	zlog := logger.New(cfg.Log.Level)
	defer zlog.Sync()

	store, err := storage.NewFileStore(cfg.Paths.OrdersDir, zlog)
	if err != nil {
		zlog.Fatal("order store init failed", zap.Error(err))
	}

	copier := artifacts.NewCopier(cfg.Paths.OutputDir, cfg.Paths.OrderFilesDir, zlog)

	stripeClient := stripe.NewClient(stripe.Config{
		BaseURL:       cfg.Stripe.BaseAPIURL,
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})

	mailer := notify.NewMailer(notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.Mail.From,
		StaffTo:  cfg.Mail.To,
	}, zlog)

	var producer events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaProducer.Close()
		producer = kafkaProducer
		zlog.Info("order event stream enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	publisher := events.NewPublisher(producer, zlog)

	service := fulfillment.NewService(store, copier, mailer, publisher, zlog)
	reconciler := reconcile.New(stripeClient, store, zlog)

	srv := server.New(service, reconciler, stripeClient, cfg.Admin.TokenHash, zlog)

	go func() {
		if err := srv.Run(cfg.HTTP.Host + ":" + cfg.HTTP.Port); err != nil {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
		return
	}
	zlog.Info("server gracefully stopped")
}
