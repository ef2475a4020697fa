package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shipquery/shipquery/internal/api"
	"github.com/shipquery/shipquery/internal/archive"
	"github.com/shipquery/shipquery/internal/auth"
	"github.com/shipquery/shipquery/internal/config"
	executorpostgres "github.com/shipquery/shipquery/internal/executor/postgres"
	"github.com/shipquery/shipquery/internal/nl2sql"
	"github.com/shipquery/shipquery/internal/observability"
	"github.com/shipquery/shipquery/internal/pipeline"
	querycachepostgres "github.com/shipquery/shipquery/internal/querycache/postgres"
	"github.com/shipquery/shipquery/internal/registry"
	registrypostgres "github.com/shipquery/shipquery/internal/registry/postgres"
	schemapostgres "github.com/shipquery/shipquery/internal/schema/postgres"
	s3store "github.com/shipquery/shipquery/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("shipquery-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := querycachepostgres.Open(context.Background(), querycachepostgres.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	cacheStore := querycachepostgres.NewStore(db)
	schemaProvider := schemapostgres.NewProvider(db, cfg.Schema.SampleValueLimit)
	runner := executorpostgres.NewRunner(db)
	appRegistry := registry.New(
		registrypostgres.NewSource(db, cfg.SchemaTables(), cfg.Registry.SampleLimit),
		cfg.Registry.RefreshInterval,
	)

	var translator nl2sql.Translator
	if cfg.AI.TranslateEnabled {
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize sql translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	queryPipeline := pipeline.New(logger, appRegistry, cacheStore, schemaProvider, runner, translator)

	deps := api.Dependencies{
		Logger:   logger,
		Pipeline: queryPipeline,
		Cache:    cacheStore,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabaseDSN(cfg),
			cacheStore.HealthCheck,
		),
		DependencyTimeout: time.Second,
	}

	if cfg.ObjectStore.Endpoint != "" {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Sweeper = &archive.Service{
			Cache:       cacheStore,
			ObjectStore: objectStore,
			Config: archive.Config{
				Interval:      cfg.Sweeper.Interval,
				StaleAfter:    cfg.Sweeper.StaleAfter,
				MinUseCount:   cfg.Sweeper.MinUseCount,
				BatchLimit:    cfg.Sweeper.BatchLimit,
				ArchivePrefix: cfg.Sweeper.ArchivePrefix,
			},
			Logger: logger,
		}
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
