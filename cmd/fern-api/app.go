package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/exception"
	"github.com/Ramsey-B/fern/internal/repositories/fieldmapping"
	reconciliationrepo "github.com/Ramsey-B/fern/internal/repositories/reconciliation"
	"github.com/Ramsey-B/fern/internal/repositories/sourcefile"
	"github.com/Ramsey-B/fern/internal/repositories/validationrule"
	"github.com/Ramsey-B/fern/internal/repositories/workspace"
	"github.com/Ramsey-B/fern/pkg/blob"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/exceptions"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/storage/memory"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const version = "1.0.0"

// app owns every long-lived dependency of the service. Optional backends stay nil
// when they are disabled in configuration.
type app struct {
	cfg     config.Config
	logger  ectologger.Logger
	checker *health.Checker

	tracer   *sdktrace.TracerProvider
	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	blobs    blob.Store
	server   *echo.Echo

	controller *reconciliation.Controller
}

func newApp(cfg config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:     cfg,
		logger:  logger,
		checker: health.NewChecker(version),
	}
}

// Run starts every dependency in order, serves until ctx is cancelled and then
// stops them in reverse order.
func (a *app) Run(ctx context.Context) error {
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)

	s.AddDependency(&startup.Dependency{Name: "tracing", StartFunc: a.startTracing, StopFunc: a.stopTracing})
	s.AddDependency(&startup.Dependency{Name: "database", StartFunc: a.startDatabase, StopFunc: a.stopDatabase})
	s.AddDependency(&startup.Dependency{Name: "redis", StartFunc: a.startRedis, StopFunc: a.stopRedis})
	s.AddDependency(&startup.Dependency{Name: "blob", StartFunc: a.startBlob})
	s.AddDependency(&startup.Dependency{Name: "kafka-producer", StartFunc: a.startProducer, StopFunc: a.stopProducer})
	s.AddDependency(&startup.Dependency{
		Name:      "http",
		Requires:  []string{"tracing", "database", "redis", "blob", "kafka-producer"},
		StartFunc: a.startServer,
		StopFunc:  a.stopServer,
	})
	s.AddDependency(&startup.Dependency{
		Name:      "kafka-consumer",
		Requires:  []string{"http"},
		StartFunc: a.startConsumer,
		StopFunc:  a.stopConsumer,
	})

	if err := s.Start(ctx); err != nil {
		return err
	}
	a.checker.SetReady(true)
	a.logger.WithField("port", a.cfg.Port).Info("Service is ready")

	<-ctx.Done()
	a.checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func (a *app) startTracing(ctx context.Context) error {
	if !a.cfg.TracingEnabled {
		return nil
	}
	otlp := exporters.DefaultOTLPConfig()
	otlp.Endpoint = a.cfg.OTLPEndpoint
	otlp.Protocol = a.cfg.OTLPProtocol
	otlp.Insecure = a.cfg.OTLPInsecure

	provider, err := tracing.NewProvider(ctx, a.cfg.AppName, otlp)
	if err != nil {
		return err
	}
	a.tracer = provider
	return nil
}

func (a *app) stopTracing(ctx context.Context) error {
	if a.tracer == nil {
		return nil
	}
	return a.tracer.Shutdown(ctx)
}

func (a *app) startDatabase(ctx context.Context) error {
	if a.cfg.StorageBackend != "postgres" {
		return nil
	}
	db, err := database.Open(ctx, database.ConnectionConfig{
		Driver:       a.cfg.DatabaseDriver,
		Host:         a.cfg.DatabaseHost,
		Port:         a.cfg.DatabasePort,
		User:         a.cfg.DatabaseUserName,
		Password:     a.cfg.DatabasePassword,
		Name:         a.cfg.DatabaseName,
		SSLMode:      a.cfg.DatabaseSSLMode,
		MaxOpenConns: a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns: a.cfg.DatabaseMaxIdleConns,
	}, a.logger)
	if err != nil {
		return err
	}
	if a.cfg.DatabaseConnMaxLifetime > 0 {
		db.Unsafe().SetConnMaxLifetime(a.cfg.DatabaseConnMaxLifetime)
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(max(a.cfg.DatabaseMigrationVersion, 0)),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.MigratePostgres(db.Unsafe(), a.cfg.DatabaseName); err != nil {
		_ = db.Close()
		return err
	}

	a.db = db
	a.checker.AddCheck("database", db.PingContext)
	return nil
}

func (a *app) stopDatabase(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) startRedis(context.Context) error {
	if !a.cfg.RedisEnabled {
		return nil
	}
	client, err := redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.checker.AddCheck("redis", client.Ping)
	return nil
}

func (a *app) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) startBlob(ctx context.Context) error {
	switch a.cfg.BlobBackend {
	case "gcs":
		store, err := blob.NewGCSStore(ctx, a.cfg.BlobGCSBucket, a.cfg.BlobGCSCredentialsJSON)
		if err != nil {
			return err
		}
		a.blobs = store
	case "local", "":
		store, err := blob.NewLocalStore(a.cfg.BlobLocalDir)
		if err != nil {
			return err
		}
		a.blobs = store
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", a.cfg.BlobBackend)
	}
	return nil
}

func (a *app) startProducer(context.Context) error {
	if !a.cfg.KafkaEnabled {
		return nil
	}
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaEventsTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	if err != nil {
		return err
	}
	a.producer = producer
	return nil
}

func (a *app) stopProducer(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *app) stores() (storage.Stores, error) {
	switch a.cfg.StorageBackend {
	case "postgres":
		return storage.Stores{
			Workspaces:      workspace.NewRepository(a.db, a.logger),
			SourceFiles:     sourcefile.NewRepository(a.db, a.logger),
			Mappings:        fieldmapping.NewRepository(a.db, a.logger),
			Rules:           validationrule.NewRepository(a.db, a.logger),
			Reconciliations: reconciliationrepo.NewRepository(a.db, a.logger),
			Exceptions:      exception.NewRepository(a.db, a.logger),
		}, nil
	case "memory", "":
		a.logger.Warn("Using in-memory storage; data is lost on restart")
		return memory.NewStores(), nil
	default:
		return storage.Stores{}, fmt.Errorf("unknown STORAGE_BACKEND %q", a.cfg.StorageBackend)
	}
}

func (a *app) locker() lock.Locker {
	if a.redis != nil {
		return redis.NewLocker(a.redis, "")
	}
	return lock.NewMemoryLocker()
}

func (a *app) startServer(context.Context) error {
	stores, err := a.stores()
	if err != nil {
		return err
	}

	// a nil *kafka.Producer stored in the interface would not read as nil
	var publisher events.Publisher
	if a.producer != nil {
		publisher = a.producer
	}
	emitter := events.NewEmitter(publisher, a.logger)

	mapperConfig := mapping.DefaultConfig()
	mapperConfig.Threshold = a.cfg.AutoMatchThreshold
	validatorConfig := validation.DefaultConfig()
	if a.cfg.ValidationRatioTolerance > 0 {
		validatorConfig.RatioTolerance = decimal.NewFromFloat(a.cfg.ValidationRatioTolerance)
	}

	validator := validation.NewEngine(a.logger, validation.NewRegistry(expressions.NewEvaluator()), validatorConfig)
	pipeline := reconciliation.NewPipeline(a.logger, matching.NewEngine(a.logger, matching.DefaultConfig()), validator)
	a.controller = reconciliation.NewController(stores, a.blobs, a.locker(), pipeline, emitter, a.logger, reconciliation.Config{
		RunTimeout: a.cfg.RunTimeout,
		LockTTL:    a.cfg.RunLockTTL,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Server.ReadTimeout = time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = a.cfg.MaxHeaderBytes

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(echomw.BodyLimit(strconv.FormatInt(a.cfg.MaxUploadBytes, 10)))

	a.checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	routes.Register(e.Group("/api/v1"), routes.Dependencies{
		Stores:     stores,
		Controller: a.controller,
		Mapper:     mapping.NewMapper(a.logger, mapperConfig),
		Validator:  validator,
		Exceptions: exceptions.NewManager(stores.Exceptions, emitter, a.logger),
		Logger:     a.logger,
	})
	a.server = e

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", a.cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (a *app) stopServer(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *app) startConsumer(ctx context.Context) error {
	if !a.cfg.KafkaEnabled {
		return nil
	}
	a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       a.cfg.KafkaBrokers,
		Topic:         a.cfg.KafkaRunRequestTopic,
		ConsumerGroup: a.cfg.KafkaConsumerGroup,
	}, a.logger, a.controller.HandleRunRequest)
	a.checker.AddCheck("kafka", func(context.Context) error {
		if !a.consumer.Health() {
			return errors.New("consumer is not running")
		}
		return nil
	})
	return a.consumer.Start(ctx)
}

func (a *app) stopConsumer(context.Context) error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Stop()
}
