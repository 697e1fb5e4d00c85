package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	httpadapter "github.com/orderflow/payment-core/internal/adapter/primary/http"
	"github.com/orderflow/payment-core/internal/adapter/secondary/cache"
	"github.com/orderflow/payment-core/internal/adapter/secondary/database"
	"github.com/orderflow/payment-core/internal/adapter/secondary/messaging"
	"github.com/orderflow/payment-core/internal/adapter/secondary/provider"
	"github.com/orderflow/payment-core/internal/config"
	"github.com/orderflow/payment-core/internal/constant/model/db"
	"github.com/orderflow/payment-core/internal/core/service"
	"github.com/orderflow/payment-core/internal/port/output"
)

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Initialize secondary adapter: Database
	dbConn, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	// Initialize secondary adapters: repositories and unit of work
	transactionRepo := database.NewGormTransactionRepository(dbConn.DB)
	webhookRepo := database.NewGormWebhookRepository(dbConn.DB)
	orderGateway := database.NewGormOrderGateway(dbConn.DB)
	uow := database.NewGormUnitOfWork(dbConn.DB)

	idempotencyStore, err := buildIdempotencyStore(cfg, dbConn)
	if err != nil {
		log.Fatalf("Failed to build idempotency store: %v", err)
	}

	// Initialize secondary adapter: provider registry (closed, built once)
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

	// Initialize secondary adapter: Messaging
	publisher, err := messaging.NewRabbitMQClient(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	// Initialize core service (implements input port)
	orchestrator := service.NewPaymentOrchestrator(
		transactionRepo,
		webhookRepo,
		idempotencyStore,
		orderGateway,
		registry,
		publisher,
		uow,
		cfg.DefaultProvider,
		logger,
	)

	// Initialize primary adapters: HTTP handlers (use input port)
	paymentHandler := httpadapter.NewPaymentHandler(orchestrator)
	webhookHandler := httpadapter.NewWebhookHandler(registry, orchestrator)

	// Initialize Echo
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	api := e.Group("/api/v1")
	api.POST("/payments", paymentHandler.CreatePayment)
	api.GET("/payments/:id", paymentHandler.GetPayment)
	api.POST("/payments/:id/reconcile", paymentHandler.Reconcile)
	api.POST("/webhooks/:provider", webhookHandler.Handle)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting API server on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func buildIdempotencyStore(cfg *config.Config, dbConn *db.DB) (output.IdempotencyStore, error) {
	if cfg.IdempotencyBackend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return cache.NewRedisIdempotencyStore(redis.NewClient(opts), "idem"), nil
	}
	return database.NewGormIdempotencyStore(dbConn.DB), nil
}
