package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/alerting"
	"pricewatch/internal/broker"
	"pricewatch/internal/classifier"
	"pricewatch/internal/config"
	"pricewatch/internal/constants"
	"pricewatch/internal/enrichment"
	"pricewatch/internal/failures"
	"pricewatch/internal/idempotency"
	"pricewatch/internal/ingest"
	"pricewatch/internal/logger"
	"pricewatch/internal/queue"
	"pricewatch/internal/state"
	"pricewatch/internal/worker"
	"pricewatch/pkg/bootstrap"
	"pricewatch/pkg/circuitbreaker"
	"pricewatch/pkg/health"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/migrations"
	"pricewatch/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	loader      *config.Loader
	dbConnector *bootstrap.DatabaseConnector

	redis       *redis.Client
	postgresDB  *sql.DB
	mongoClient *mongo.Client
	producer    broker.Producer

	classifier   *classifier.Classifier
	dispatcher   *alerting.Dispatcher
	orchestrator *worker.Orchestrator
	server       *http.Server
}

func NewApp(cfg *config.Config, loader *config.Loader, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		loader:      loader,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracer", tp.Shutdown)

	if err := a.initDatabases(ctx); err != nil {
		return err
	}

	metrics.RegisterIngestMetrics()

	a.producer = broker.NewProducer(a.Config.Broker.Kafka, serviceName, a.Logger)
	a.OnShutdown("kafka producer", func(context.Context) error { return a.producer.Close() })

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	a.initHTTPServer()
	return nil
}

// initDatabases connects Redis, which carries the inbound stream and is
// required, and the optional Postgres and MongoDB stores.
func (a *App) initDatabases(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rdb, err := a.dbConnector.InitRedis(initCtx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redis = rdb
	a.OnShutdown("redis", func(context.Context) error { return rdb.Close() })
	a.Health.Register(health.NewRedisChecker(rdb))

	db, err := a.dbConnector.InitPostgreSQL(initCtx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if db != nil {
		a.postgresDB = db
		a.OnShutdown("postgres", func(context.Context) error { return db.Close() })
		a.Health.Register(health.NewPostgreSQLChecker(db))

		if a.Config.Database.RunMigrations {
			if err := migrations.RunPostgres(db); err != nil {
				return err
			}
			a.Logger.InfowCtx(ctx, "PostgreSQL migrations applied")
		}
	} else {
		a.Logger.WarnwCtx(ctx, "PostgreSQL not configured, state and alerts are kept in memory")
	}

	mongoClient, err := a.dbConnector.InitMongoDB(initCtx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "MongoDB connection failed, failure records are kept in memory", "error", err)
	} else if mongoClient != nil {
		a.mongoClient = mongoClient
		a.OnShutdown("mongodb", mongoClient.Disconnect)
		a.Health.RegisterOptional(health.NewMongoDBChecker(mongoClient))

		if err := migrations.EnsureFailureRecordIndexes(initCtx, a.mongoDatabase(), a.Config.Database.MongoDB.FailureCollection); err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to ensure failure record indexes", "error", err)
		}
	}

	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	name := a.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(name)
}

func (a *App) initPipeline(ctx context.Context) error {
	cfg := a.Config

	q := queue.NewRedisStreamQueue(a.redis, cfg.Queue, a.Logger)
	if err := q.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("redis-idempotency")
	idemStore := idempotency.NewCircuitBreakerStore(idempotency.NewRedisStore(a.redis), cbCfg)
	idem := idempotency.NewCache(idemStore, cfg.Idempotency, a.Logger)

	var failureStore failures.Store = failures.NewMemoryStore()
	if a.mongoClient != nil {
		failureStore = failures.NewMongoStore(a.mongoDatabase(), cfg.Database.MongoDB.FailureCollection)
	}
	recorder := failures.NewRecorder(failureStore, a.producer, cfg.Broker.Kafka.DeadLetterTopic, a.Logger)

	ingestor, err := ingest.NewIngestor(q, idem, recorder, cfg.Queue, cfg.Ingest, a.Logger)
	if err != nil {
		return err
	}

	deps := enrichment.Dependencies{Postgres: a.postgresDB, Redis: a.redis}
	if a.mongoClient != nil {
		deps.Mongo = a.mongoDatabase()
	}
	enricher, err := enrichment.New(cfg.Enrichment, deps, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize enrichment: %w", err)
	}

	var states state.Store
	var alertStore alerting.Store
	if a.postgresDB != nil {
		states = state.NewPostgresStore(a.postgresDB)
		alertStore = alerting.NewPostgresStore(a.postgresDB, serviceName)
	} else {
		states = state.NewMemoryStore()
		alertStore = alerting.NewMemoryStore()
	}

	a.dispatcher = alerting.NewDispatcher(a.producer, cfg.Broker.Kafka.AlertTopic, cfg.Alerting, a.Logger)
	manager := alerting.NewManager(alertStore, a.dispatcher, cfg.Alerting, a.Logger)
	a.dispatcher.OnDelivered(manager.MarkDelivered)

	a.classifier = classifier.New(cfg.Classifier)
	a.loader.WatchClassifier(func(t config.ClassifierConfig) {
		a.classifier.SetThresholds(t)
		a.Logger.Infow("Classifier thresholds reloaded")
	}, func(err error) {
		a.Logger.Warnw("Ignoring invalid classifier config", "error", err)
	})

	pipeline := worker.NewPipeline(enricher, a.classifier, states, manager, a.Logger)
	a.orchestrator = worker.NewOrchestrator(ingestor, pipeline, recorder, manager, cfg.Worker, a.Logger)
	a.OnShutdown("queue", func(context.Context) error { return q.Close() })
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := a.Health.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// The dispatcher stops only after the orchestrator so alerts raised by
	// in-flight events still reach the buffer before the final flush.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	g.Go(func() error {
		return a.dispatcher.Run(dispatchCtx)
	})

	g.Go(func() error {
		defer stopDispatch()
		return a.orchestrator.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorwCtx(ctx, "HTTP server shutdown error", "error", err)
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
