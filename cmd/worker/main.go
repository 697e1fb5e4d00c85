package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/orderflow/payment-core/internal/adapter/secondary/database"
	"github.com/orderflow/payment-core/internal/adapter/secondary/messaging"
	"github.com/orderflow/payment-core/internal/adapter/secondary/provider"
	"github.com/orderflow/payment-core/internal/config"
	"github.com/orderflow/payment-core/internal/constant/model/db"
	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/core/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Initialize secondary adapter: Database
	dbConn, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	// Initialize secondary adapters
	transactionRepo := database.NewGormTransactionRepository(dbConn.DB)
	webhookRepo := database.NewGormWebhookRepository(dbConn.DB)
	orderGateway := database.NewGormOrderGateway(dbConn.DB)
	idempotencyStore := database.NewGormIdempotencyStore(dbConn.DB)
	uow := database.NewGormUnitOfWork(dbConn.DB)

	registry := provider.NewRegistry(provider.RegistryConfig{
		StripeLike: provider.StripeLikeConfig{
			APIKey:        cfg.StripeLike.APIKey,
			WebhookSecret: cfg.StripeLike.WebhookSecret,
			BaseURL:       cfg.StripeLike.BaseURL,
			Timeout:       cfg.ProviderTimeout,
		},
		P24Like: provider.P24LikeConfig{
			MerchantID: cfg.P24Like.MerchantID,
			PosID:      cfg.P24Like.PosID,
			CRC:        cfg.P24Like.CRC,
			APIKey:     cfg.P24Like.APIKey,
			BaseURL:    cfg.P24Like.BaseURL,
			Timeout:    cfg.ProviderTimeout,
		},
		AllowStub: !cfg.IsProduction(),
	})

	// Initialize secondary adapter: Messaging (concrete type for worker)
	msgClient, err := messaging.NewRabbitMQClientConcrete(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer msgClient.Close()

	orchestrator := service.NewPaymentOrchestrator(
		transactionRepo,
		webhookRepo,
		idempotencyStore,
		orderGateway,
		registry,
		msgClient,
		uow,
		cfg.DefaultProvider,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic housekeeping: idempotency TTL sweep and stale reconciles
	maintenance := service.NewMaintenance(idempotencyStore, transactionRepo, msgClient, logger)
	go maintenance.Run(ctx, cfg.SweepInterval, cfg.ReconcileStaleAfter)

	// Consume reconcile requests
	err = msgClient.ConsumeReconcileRequests(func(msg messaging.ReconcileRequest) error {
		result, err := orchestrator.Reconcile(ctx, msg.TransactionID)
		if err != nil {
			// An unknown transaction will never reconcile; drop it rather
			// than requeue.
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("%w: %v", messaging.ErrPermanent, err)
			}
			return err
		}
		logger.Info("reconciled transaction",
			"transaction_id", msg.TransactionID,
			"outcome", result.Outcome,
			"detail", result.Detail)
		if result.Outcome == core.ReconcileOutcomeMismatch {
			logger.Warn("reconciliation mismatch requires manual handling",
				"transaction_id", msg.TransactionID,
				"local", result.LocalStatus,
				"provider", result.ProviderStatus)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to start consuming messages: %v", err)
	}

	log.Println("Payment reconcile worker started. Press CTRL+C to exit.")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
}
