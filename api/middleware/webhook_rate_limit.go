package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baymarket/baymarket-backend/api/responses"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// WebhookRateLimitPolicy defines the fixed-window throttle applied to
// provider webhook deliveries.
type WebhookRateLimitPolicy struct {
	limit  int64
	window time.Duration
}

// NewWebhookRateLimitPolicy builds a policy with the supplied window and limit.
func NewWebhookRateLimitPolicy(limit int64, window time.Duration) WebhookRateLimitPolicy {
	return WebhookRateLimitPolicy{limit: limit, window: window}
}

func (p WebhookRateLimitPolicy) enabled() bool {
	return p.limit > 0 && p.window > 0
}

// WebhookRateLimit throttles webhook deliveries per provider. A limiter
// infrastructure failure is logged and the delivery passes through, so a
// Redis outage never turns provider events into 5xx retries.
func WebhookRateLimit(policy WebhookRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scope := "webhooks"
			if provider := chi.URLParam(r, "provider"); provider != "" {
				scope = scope + ":" + provider
			}

			allowed, count, err := store.FixedWindowAllow(ctx, scope, policy.limit, policy.window)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "webhook.rate_limit.unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"scope":          scope,
						"deliveries":     count,
						"limit":          policy.limit,
						"window_seconds": int(policy.window.Seconds()),
					})
					logg.Warn(logCtx, "webhook.rate_limit.blocked")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
