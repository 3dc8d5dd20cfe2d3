package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/docstore"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/tracker"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backend is the opened order document store and what else it offers
type backend struct {
	docs   docstore.Store
	dedup  service.EventDeduplicator
	checks map[string]api.Pinger
	pg     *store.Store
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
		return &backend{
			docs:   client,
			dedup:  client,
			checks: map[string]api.Pinger{"redis": client},
			close:  func() { client.Close() },
		}, nil

	case config.BackendPostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Database connected")
		return &backend{
			docs:   db,
			checks: map[string]api.Pinger{"postgres": db},
			pg:     db,
			close:  func() { db.Close() },
		}, nil

	default:
		mem := docstore.NewMemory()
		logger.Warn("Using in-memory order store; orders are lost on restart")
		return &backend{
			docs:  mem,
			close: func() { mem.Close() },
		}, nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// loadCatalog reads products from Postgres, seeding the table with the
// built-in catalog when it is empty
func loadCatalog(ctx context.Context, cfg *config.Config, b *backend, logger *zap.Logger) (*catalog.Catalog, error) {
	if cfg.Catalog.Source != config.CatalogPostgres {
		return catalog.Default(), nil
	}

	db := b.pg
	if db == nil {
		var err error
		if db, err = openPostgres(ctx, cfg); err != nil {
			return nil, err
		}
		defer db.Close()
	}

	cat, err := catalog.Load(ctx, db)
	if err != nil {
		return nil, err
	}
	if cat.Len() > 0 {
		return cat, nil
	}

	logger.Info("Product table empty, seeding built-in catalog")
	if err := db.UpsertProducts(ctx, catalog.Default().List()); err != nil {
		return nil, err
	}
	return catalog.Load(ctx, db)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront",
		zap.String("env", cfg.Server.Env),
		zap.String("store", cfg.Store.Backend),
		zap.String("advance_mode", cfg.Tracking.AdvanceMode))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open order store", zap.Error(err))
	}
	defer b.close()

	products, err := loadCatalog(ctx, cfg, b, logger)
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded", zap.Int("products", products.Len()))

	var (
		orderEvents  service.OrderEventPublisher
		statusEvents tracker.StatusPublisher
	)
	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderEventsTopic)
		defer producer.Close()
		publisher := broker.NewEventPublisher(producer)
		orderEvents = publisher
		statusEvents = publisher
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.OrderEventsTopic))
	}

	var advancer tracker.Advancer
	if cfg.Tracking.AdvanceMode == config.AdvanceSimulated {
		advancer = tracker.NewSimulatedAdvancer(b.docs, statusEvents)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var fulfillmentWorker *worker.FulfillmentWorker
	if cfg.Tracking.AdvanceMode == config.AdvanceExternal {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.FulfillmentTopic, cfg.Kafka.ConsumerGroup)
		fulfillment := service.NewFulfillmentService(b.docs, b.dedup)
		fulfillmentWorker = worker.NewFulfillmentWorker(consumer, fulfillment)
		go func() {
			if err := fulfillmentWorker.Start(workerCtx); err != nil {
				logger.Error("Fulfillment worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	carts := cart.NewRegistry(
		cart.WithIdleTimeout(cfg.Cart.IdleTimeout),
		cart.WithMaxCarts(cfg.Cart.MaxCarts))

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Catalog:  products,
		Carts:    carts,
		Checkout: service.NewCheckoutService(b.docs, orderEvents),
		Tracking: tracker.Config{
			Store:    b.docs,
			Advancer: advancer,
			Interval: cfg.Tracking.AdvanceInterval,
		},
		JWTSecret: cfg.Auth.JWTSecret,
		Checks:    b.checks,
	})
	handler.SetupRoutes(router)

	// Tracking streams are long-lived; shutdown cancels their contexts.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if fulfillmentWorker != nil {
		if err := fulfillmentWorker.Stop(); err != nil {
			logger.Error("Failed to stop fulfillment worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
