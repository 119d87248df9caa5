package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records ingest and settlement outcomes for payment webhooks.
type WebhookMetrics struct {
	received    *prometheus.CounterVec
	settlements *prometheus.CounterVec
	rejected    prometheus.Counter
}

// NewWebhookMetrics registers the webhook pipeline metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received",
		Help: "Webhook events accepted after signature verification.",
	}, []string{"event_type"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_settlements",
		Help: "Settlement attempts by outcome.",
	}, []string{"outcome"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_signature_rejections",
		Help: "Webhook requests rejected for an invalid signature.",
	})
	reg.MustRegister(received, settlements, rejected)
	return &WebhookMetrics{
		received:    received,
		settlements: settlements,
		rejected:    rejected,
	}
}

// IncReceived counts an accepted event of the given type.
func (w *WebhookMetrics) IncReceived(eventType string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncSettlement counts a settlement attempt outcome (settled, duplicate, failed).
func (w *WebhookMetrics) IncSettlement(outcome string) {
	if w == nil || w.settlements == nil {
		return
	}
	w.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSignatureRejected counts a request dropped at signature verification.
func (w *WebhookMetrics) IncSignatureRejected() {
	if w == nil || w.rejected == nil {
		return
	}
	w.rejected.Inc()
}
