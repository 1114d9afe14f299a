package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/alerting"
	"pricewatch/internal/api"
	"pricewatch/internal/broker"
	"pricewatch/internal/config"
	"pricewatch/internal/constants"
	"pricewatch/internal/logger"
	"pricewatch/internal/state"
	"pricewatch/pkg/bootstrap"
	"pricewatch/pkg/health"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/middleware"
	"pricewatch/pkg/ratelimit"
	"pricewatch/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	producer    broker.Producer
	consumer    broker.Consumer
	dispatcher  *alerting.Dispatcher
	hub         *api.Hub
	router      *gin.Engine
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracer", tp.Shutdown)

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	metrics.RegisterAPIMetrics()

	a.producer = broker.NewProducer(a.Config.Broker.Kafka, serviceName, a.Logger)
	a.OnShutdown("kafka producer", func(context.Context) error { return a.producer.Close() })

	a.hub = api.NewHub(a.Logger)
	if len(a.Config.Broker.Kafka.Brokers) > 0 {
		a.consumer = broker.NewConsumer(a.Config.Broker.Kafka, serviceName, a.Logger)
		a.OnShutdown("kafka consumer", func(context.Context) error { return a.consumer.Close() })
	} else {
		a.Logger.WarnwCtx(ctx, "No Kafka brokers configured, the alert feed only carries local operator actions")
	}

	a.initRouter(ctx)

	a.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:     a.router,
		ReadTimeout: a.Config.Server.ReadTimeoutSeconds,
		// No write timeout: it would cut long-lived feed connections.
	}
	return nil
}

// initDatabase connects Postgres, which holds the state and alert tables
// written by the ingest service. Migrations are left to that service.
func (a *App) initDatabase(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := a.dbConnector.InitPostgreSQL(initCtx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("database.postgres.host is required")
	}
	a.db = db
	a.OnShutdown("postgres", func(context.Context) error { return db.Close() })
	a.Health.Register(health.NewPostgreSQLChecker(db))
	return nil
}

func (a *App) initRouter(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	rl := a.Config.API.RateLimit
	if rl.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             rl.RPS,
			Burst:           rl.Burst,
			CleanupInterval: time.Duration(rl.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(rl.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	// Operator actions go through the same manager semantics as the
	// ingest path; their events are published to the alert topic.
	a.dispatcher = alerting.NewDispatcher(a.producer, a.Config.Broker.Kafka.AlertTopic, a.Config.Alerting, a.Logger)
	manager := alerting.NewManager(alerting.NewPostgresStore(a.db, serviceName), a.dispatcher, a.Config.Alerting, a.Logger)
	a.dispatcher.OnDelivered(manager.MarkDelivered)

	handler := api.NewHandler(state.NewPostgresStore(a.db), manager, a.hub, a.Logger)
	handler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		h := a.Health.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.dispatcher.Run(gCtx)
	})

	if a.consumer != nil {
		g.Go(func() error {
			err := a.consumer.Consume(gCtx, a.Config.Broker.Kafka.AlertTopic, a.hub.Consume)
			if err != nil && gCtx.Err() == nil {
				return fmt.Errorf("alert feed consumer error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorwCtx(ctx, "Server shutdown error", "error", err)
		}
		return nil
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if shutdownErr := a.Shutdown(shutdownCtx); shutdownErr != nil {
		a.Logger.ErrorwCtx(ctx, "Shutdown error", "error", shutdownErr)
	}
	return err
}
