package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baymarket/baymarket-backend/api/controllers"
	webhookcontrollers "github.com/baymarket/baymarket-backend/api/controllers/webhooks"
	"github.com/baymarket/baymarket-backend/api/middleware"
	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/internal/trust"
	"github.com/baymarket/baymarket-backend/pkg/config"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/metrics"
)

type paymentProcessor interface {
	Process(ctx context.Context, body []byte) (string, string)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RouterParams carries everything the HTTP surface depends on. Nil pingers
// are skipped by the readiness check.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             pinger
	Redis          pinger
	PubSub         pinger
	RiskService    risk.Service
	TrustService   trust.Service
	Processor      paymentProcessor
	WebhookMetrics *metrics.WebhookMetrics
	RateLimiter    rateLimiter
}

// NewRouter wires the webhook ingest path and the admin governance API.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	deps := map[string]controllers.Pinger{}
	if params.DB != nil {
		deps["db"] = params.DB
	}
	if params.Redis != nil {
		deps["redis"] = params.Redis
	}
	if params.PubSub != nil {
		deps["pubsub"] = params.PubSub
	}

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, logg, deps))

	webhookLimit := middleware.NewWebhookRateLimitPolicy(cfg.Payments.RateLimit, cfg.Payments.RateLimitWindow)
	r.With(middleware.WebhookRateLimit(webhookLimit, params.RateLimiter, logg)).
		Post("/webhooks/{provider}", webhookcontrollers.PaymentWebhook(cfg.Payments, params.Processor, params.WebhookMetrics, logg))

	r.Route("/api/admin/v1", func(admin chi.Router) {
		admin.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole("admin", logg),
		)

		admin.Route("/stores/{storeId}", func(store chi.Router) {
			store.Get("/risk", controllers.AdminStoreRiskState(params.RiskService, logg))
			store.Get("/risk-events", controllers.AdminStoreRiskEvents(params.RiskService, logg))
			store.Patch("/risk-level", controllers.AdminSetStoreRiskLevel(params.RiskService, logg))
			store.Post("/freeze", controllers.AdminFreezeStore(params.RiskService, logg))
			store.Post("/unfreeze", controllers.AdminUnfreezeStore(params.RiskService, logg))
			store.Post("/risk-flag", controllers.AdminSetStoreRiskFlag(params.RiskService, logg))
			store.Post("/risk-evaluate", controllers.AdminEvaluateStoreRisk(params.RiskService, logg))

			store.Get("/trust", controllers.AdminStoreTrustState(params.TrustService, logg))
			store.Get("/trust-events", controllers.AdminStoreTrustEvents(params.TrustService, logg))
			store.Post("/trust-recompute", controllers.AdminRecomputeStoreTrust(params.TrustService, logg))
		})

		admin.Route("/risk", func(rr chi.Router) {
			rr.Get("/stores", controllers.AdminRiskStores(params.RiskService, logg))
			rr.Get("/summary", controllers.AdminRiskSummary(params.RiskService, logg))
			rr.Get("/jobs/daily-eval/status", controllers.AdminRiskJobStatus(params.RiskService, logg))
			rr.Post("/jobs/daily-eval/run", controllers.AdminRunRiskDailyEval(params.RiskService, logg))
		})

		admin.Route("/trust", func(tr chi.Router) {
			tr.Get("/stores", controllers.AdminTrustStores(params.TrustService, logg))
			tr.Get("/summary", controllers.AdminTrustSummary(params.TrustService, logg))
			tr.Get("/jobs/daily-recompute/status", controllers.AdminTrustJobStatus(params.TrustService, logg))
			tr.Post("/jobs/daily-recompute/run", controllers.AdminRunTrustDailyRecompute(params.TrustService, logg))
		})
	})

	return r
}
