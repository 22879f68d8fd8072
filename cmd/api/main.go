package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/dealdesk/bramble/config"
	"github.com/dealdesk/bramble/internal/platform/database"
	"github.com/dealdesk/bramble/internal/platform/middleware"
	"github.com/dealdesk/bramble/internal/platform/tracing"
	"github.com/dealdesk/bramble/internal/repositories/dependent"
	"github.com/dealdesk/bramble/internal/repositories/lead"
	"github.com/dealdesk/bramble/internal/repositories/mergehistory"
	"github.com/dealdesk/bramble/pkg/events"
	"github.com/dealdesk/bramble/pkg/grouping"
	"github.com/dealdesk/bramble/pkg/kafka"
	mergeengine "github.com/dealdesk/bramble/pkg/merge"
	"github.com/dealdesk/bramble/pkg/routes/duplicates"
	"github.com/dealdesk/bramble/pkg/routes/health"
	mergeroutes "github.com/dealdesk/bramble/pkg/routes/merge"
	"github.com/dealdesk/bramble/pkg/scoring"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger ectologger.Logger) error {
	tp := tracing.Init(cfg.AppName)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shut down tracer provider")
		}
	}()

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, databaseDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlxDB.Close()
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	if err := migrateDatabase(cfg, logger, sqlxDB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db := database.New(sqlxDB, logger)

	leadRepo := lead.NewRepository(db, logger)
	dependentRepo := dependent.NewRepository(db, logger)
	historyRepo := mergehistory.NewRepository(db, logger)

	scoringCfg := scoring.Config{
		ZipMismatchCap:       cfg.ZipMismatchCap,
		GPSMatchRadiusMeters: cfg.GPSMatchRadiusMeters,
		GPSZeroRadiusMeters:  cfg.GPSZeroRadiusMeters,
		HighCutoff:           cfg.ConfidenceHighCutoff,
		MediumCutoff:         cfg.ConfidenceMediumCutoff,
		LowCutoff:            cfg.ConfidenceLowCutoff,
	}
	scorer := scoring.NewScorer(scoringCfg)
	grouper := grouping.NewGrouper(leadRepo, scorer, scoringCfg, logger)

	var emitter *events.Emitter
	var mergeNotifier mergeengine.Notifier
	var runNotifier duplicates.RunNotifier
	if cfg.KafkaProducerEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.WithError(err).Error("Failed to close kafka producer")
			}
		}()
		emitter = events.NewEmitter(producer, logger)
		mergeNotifier = emitter
		runNotifier = emitter
	}

	planner := mergeengine.NewPlanner(leadRepo, logger)
	executor := mergeengine.NewExecutor(db, leadRepo, dependentRepo, historyRepo, scorer, mergeNotifier, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	health.NewHandler(db).Register(e)

	api := e.Group("/api/v1")
	duplicates.NewHandler(grouper, leadRepo, scorer, runNotifier, cfg.DefaultSimilarityThreshold, logger).
		Register(api.Group("/duplicates"))
	mergeroutes.NewHandler(planner, executor, historyRepo, logger).
		Register(api.Group("/merge"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Infof("Starting %s on port %d", cfg.AppName, cfg.Port)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err == nil {
		zapCfg.Level = level
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func databaseDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)
}

func migrateDatabase(cfg *config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.Migrate(cfg.DatabaseName, driver)
}
