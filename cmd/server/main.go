package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/api"
	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"
	"fulfillment-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "fulfillment-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting fulfillment service")

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	checks := map[string]api.Pinger{"store": st}

	var locker service.Locker
	var cache service.IdempotencyCache
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker, cache = redisClient, redisClient
		checks["redis"] = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set; checkout locks and gateway key cache disabled")
	}

	var publisher service.EventPublisher = service.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMarketplace)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Warn("KAFKA_BROKERS not set; domain events are dropped")
	}

	fees, err := service.NewFeeSchedule(cfg.Business.PlatformFeePercent)
	if err != nil {
		logger.Fatal("Invalid fee configuration", zap.Error(err))
	}

	ledger := service.NewInventoryLedger(st)
	notifier := service.NewNotificationService(st, publisher)
	paymentService := service.NewPaymentService(st, cache)
	services := api.Services{
		Checkout: service.NewCheckoutService(st, ledger, notifier, publisher, locker, service.CheckoutConfig{
			Fees:            fees,
			DefaultCurrency: cfg.Business.DefaultCurrency,
			LockTTL:         cfg.Business.CheckoutLockTTL,
		}),
		Orders:        service.NewOrderService(st, notifier, publisher),
		Refunds:       service.NewRefundService(st, ledger, notifier, publisher),
		Carts:         service.NewCartService(st),
		Notifications: notifier,
		Inventory:     ledger,
		Payments:      paymentService,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var gatewayWorker *worker.GatewayWorker
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicGatewayEvents, cfg.Kafka.ConsumerGroup)
		gatewayWorker = worker.NewGatewayWorker(consumer, paymentService)
		go func() {
			if err := gatewayWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Gateway worker stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if gatewayWorker != nil {
		if err := gatewayWorker.Stop(); err != nil {
			logger.Warn("Error stopping gateway worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		util.GetLogger().Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.StatementTimeout)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	util.GetLogger().Info("Database connected")
	return db, nil
}
