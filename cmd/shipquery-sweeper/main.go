package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shipquery/shipquery/internal/archive"
	"github.com/shipquery/shipquery/internal/config"
	"github.com/shipquery/shipquery/internal/observability"
	querycachepostgres "github.com/shipquery/shipquery/internal/querycache/postgres"
	s3store "github.com/shipquery/shipquery/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("shipquery-sweeper")
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

	store, err := s3store.New(context.Background(), s3store.Config{
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

	svc := &archive.Service{
		Cache:       querycachepostgres.NewStore(db),
		ObjectStore: store,
		Config: archive.Config{
			Interval:      cfg.Sweeper.Interval,
			StaleAfter:    cfg.Sweeper.StaleAfter,
			MinUseCount:   cfg.Sweeper.MinUseCount,
			BatchLimit:    cfg.Sweeper.BatchLimit,
			ArchivePrefix: cfg.Sweeper.ArchivePrefix,
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("sweeper worker started")
	if err := svc.Run(ctx); err != nil {
		logger.Error("sweeper worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("sweeper worker stopped")
}
