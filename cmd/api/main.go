package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/baymarket/baymarket-backend/api/routes"
	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/internal/notify"
	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/internal/settlement"
	"github.com/baymarket/baymarket-backend/internal/trust"
	"github.com/baymarket/baymarket-backend/internal/webhooks/payments"
	"github.com/baymarket/baymarket-backend/pkg/config"
	"github.com/baymarket/baymarket-backend/pkg/db"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/metrics"
	"github.com/baymarket/baymarket-backend/pkg/migrate"
	"github.com/baymarket/baymarket-backend/pkg/pubsub"
	"github.com/baymarket/baymarket-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	// Buyer notifications ride Pub/Sub when a GCP project is configured.
	// Without one the settle flow still completes; it just skips the event.
	var (
		notifier     settlement.Notifier
		pubsubClient *pubsub.Client
	)
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()

		publisher, err := notify.NewPubSubPublisher(pubsubClient.NotificationPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create notification publisher", err)
			os.Exit(1)
		}
		notifier, err = notify.NewNotifier(publisher, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create notifier", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "no GCP project configured, buyer notifications disabled")
	}

	guard, err := settlement.NewGuard(redisClient, cfg.Payments.SettlementLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement guard", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Repo:              settlement.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Guard:             guard,
		Notifier:          notifier,
		CommissionRate:    cfg.Payments.Commission(),
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

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

	processor, err := payments.NewProcessor(payments.ProcessorParams{
		Provider:  cfg.Payments.Provider,
		Settler:   settlementService,
		Risk:      riskService,
		ErrorSink: payments.NewErrorLogRepository(dbClient.DB()),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook processor", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	routerParams := routes.RouterParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		RiskService:    riskService,
		TrustService:   trustService,
		Processor:      processor,
		WebhookMetrics: webhookMetrics,
		RateLimiter:    redisClient,
	}
	if pubsubClient != nil {
		routerParams.PubSub = pubsubClient
	}

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(routerParams),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
