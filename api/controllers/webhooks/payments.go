package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baymarket/baymarket-backend/api/responses"
	"github.com/baymarket/baymarket-backend/internal/webhooks/payments"
	"github.com/baymarket/baymarket-backend/pkg/config"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/metrics"
)

// Payment bodies are small; anything past this is not a legitimate event.
const maxWebhookBody = 1 << 20

type paymentProcessor interface {
	Process(ctx context.Context, body []byte) (eventType string, outcome string)
}

// PaymentWebhook verifies and dispatches provider payment events. The
// signature check is the only path that refuses an event; everything past it
// is acked so the provider stops retrying.
func PaymentWebhook(cfg config.PaymentsConfig, proc paymentProcessor, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if proc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		provider := strings.TrimSpace(chi.URLParam(r, "provider"))
		if !strings.EqualFold(provider, cfg.Provider) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown provider"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := r.Header.Get(payments.SignatureHeader(cfg.Provider))
		if !payments.VerifySignature(cfg.WebhookSecret, body, signature) {
			m.IncSignatureRejected()
			if logg != nil {
				logg.Warn(ctx, "webhook signature rejected")
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		eventType, outcome := proc.Process(ctx, body)
		m.IncReceived(eventType)
		m.IncSettlement(outcome)

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
