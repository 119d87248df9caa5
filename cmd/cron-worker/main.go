package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/baymarket/baymarket-backend/internal/cron"
	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/internal/trust"
	"github.com/baymarket/baymarket-backend/pkg/config"
	"github.com/baymarket/baymarket-backend/pkg/db"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/metrics"
	"github.com/baymarket/baymarket-backend/pkg/migrate"
	"github.com/baymarket/baymarket-backend/pkg/redis"
)

const lockKeyFormat = "bm:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobStore, err := jobrun.NewStore(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create job run store", err)
		os.Exit(1)
	}

	riskService, err := risk.NewService(risk.ServiceParams{
		Repo:              risk.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Jobs:              jobStore,
		Config:            cfg.Risk,
		LockTTL:           cfg.Jobs.LockTTL,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create risk service", err)
		os.Exit(1)
	}

	trustService, err := trust.NewService(trust.ServiceParams{
		Repo:              trust.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Jobs:              jobStore,
		Config:            cfg.Trust,
		LockTTL:           cfg.Jobs.LockTTL,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create trust service", err)
		os.Exit(1)
	}

	riskJob, err := cron.NewRiskEvalJob(riskService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create risk eval job", err)
		os.Exit(1)
	}
	trustJob, err := cron.NewTrustRecomputeJob(trustService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create trust recompute job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(riskJob, trustJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Jobs.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
