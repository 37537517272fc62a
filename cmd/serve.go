package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"munda-checkout/internal/handlers"
	"munda-checkout/internal/middleware"
	"munda-checkout/internal/models"
	"munda-checkout/internal/repositories"
	"munda-checkout/internal/services"
	"munda-checkout/pkg/auth"
	"munda-checkout/pkg/cache"
	"munda-checkout/pkg/database"
	"munda-checkout/pkg/marketplace"
	"munda-checkout/pkg/messaging"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cart and checkout HTTP API",
	RunE:  runServe,
}

// backends owns every connection opened for one serve run.
type backends struct {
	db       *database.Database
	redis    *cache.RedisCache
	kafka    *messaging.KafkaProducer
	storage  repositories.CartStorage
	receipts repositories.ReceiptRepository
	events   services.EventPublisher
	checks   map[string]handlers.HealthChecker
}

func (b *backends) Close() {
	if b.kafka != nil {
		b.kafka.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	_ = b.db.Close()
}

func openBackends() (*backends, error) {
	b := &backends{
		db:     database.New(logger),
		checks: map[string]handlers.HealthChecker{},
	}

	switch cfg.Checkout.StorageDriver {
	case "memory":
		b.storage = repositories.NewMemoryCartStorage()
	case "redis":
		rc, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return b, err
		}
		b.redis = rc
		b.storage = repositories.NewRedisCartStorage(rc, cfg.Checkout.CartTTL)
		b.checks["redis"] = func(c *gin.Context) error { return rc.Ping(c.Request.Context()) }
	case "postgres":
		if err := b.db.ConnectPostgres(cfg.Database.PostgresURL); err != nil {
			return b, err
		}
		if err := b.db.AutoMigrate(&models.CartRecord{}); err != nil {
			return b, fmt.Errorf("failed to migrate cart table: %w", err)
		}
		b.storage = repositories.NewPostgresCartStorage(b.db.Postgres)
	default:
		return b, fmt.Errorf("unknown cart storage driver %q", cfg.Checkout.StorageDriver)
	}

	if cfg.Checkout.ArchiveReceipts {
		if cfg.Database.MongoURL != "" {
			if err := b.db.ConnectMongo(cfg.Database.MongoURL, cfg.Database.MongoDBName); err != nil {
				return b, err
			}
			b.receipts = repositories.NewReceiptRepository(b.db.MongoDB)
		} else {
			logger.Warn("no MONGO_URL set, receipts are kept in memory")
			b.receipts = repositories.NewMemoryReceiptRepository()
		}
	}
	if b.db.Postgres != nil || b.db.MongoDB != nil {
		b.checks["database"] = func(c *gin.Context) error { return b.db.Ping(c.Request.Context()) }
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		b.kafka = messaging.NewKafkaProducer(cfg.Kafka.Brokers)
		b.events = messaging.NewTopicPublisher(b.kafka, cfg.Kafka.Topic)
	}
	return b, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	gin.SetMode(cfg.Server.Mode)

	b, err := openBackends()
	defer b.Close()
	if err != nil {
		return err
	}

	gateway := marketplace.NewClient(cfg.Marketplace.BaseURL, cfg.Marketplace.ServiceToken, cfg.Marketplace.HTTPTimeout)
	sessions := services.NewSessionService(b.storage, gateway, b.events, b.receipts, services.SessionConfig{
		QuoteDebounce:  cfg.Checkout.QuoteDebounce,
		QuoteTimeout:   cfg.Checkout.QuoteTimeout,
		PreviewTimeout: cfg.Checkout.QuoteTimeout,
		SubmitTimeout:  cfg.Checkout.SubmitTimeout,
		IdleTTL:        cfg.Checkout.SessionIdleTTL,
	}, logger)

	router := newRouter(sessions, auth.NewJWTManager(cfg.JWT.SecretKey), b.checks)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("storage", cfg.Checkout.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.RunSweeper(gctx, cfg.Checkout.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		sessions.Close(shutdownCtx)
		return err
	})

	return g.Wait()
}

func newRouter(sessions *services.SessionService, jwtManager *auth.JWTManager, checks map[string]handlers.HealthChecker) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	handlers.NewMetaHandler("munda-checkout", checks).RegisterRoutes(router)

	authMiddleware := middleware.NewAuthMiddleware(jwtManager)
	api := router.Group("/api/v1")
	handlers.NewCartHandler(sessions).RegisterRoutes(api, authMiddleware)
	handlers.NewCheckoutHandler(sessions).RegisterRoutes(api, authMiddleware)
	handlers.NewReceiptHandler(sessions).RegisterRoutes(api, authMiddleware)

	return router
}
