package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/internal/settlement"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/policy"
)

// Provider event types.
const (
	EventPaymentSuccess    = "payment.success"
	EventDisputeCreated    = "payment.dispute.created"
	EventChargebackCreated = "payment.chargeback.created"
	EventRefunded          = "payment.refunded"
)

// Outcomes feed the webhook metrics labels.
const (
	OutcomeSettled     = "settled"
	OutcomeDuplicate   = "duplicate"
	OutcomeSignal      = "signal"
	OutcomeIgnored     = "ignored"
	OutcomeQuarantined = "quarantined"
)

// Envelope is the provider's outer event shape.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type successData struct {
	OrderID       uuid.UUID       `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Payer         json.RawMessage `json:"payer"`
}

type signalData struct {
	VendorStoreID uuid.UUID `json:"vendor_store_id"`
	TransactionID string    `json:"transaction_id"`
}

type settler interface {
	Settle(ctx context.Context, payment settlement.PaymentData) (*settlement.Result, error)
}

type signalRecorder interface {
	RecordSignal(ctx context.Context, storeID uuid.UUID, kind risk.SignalKind) error
}

type errorSink interface {
	Quarantine(ctx context.Context, entry *models.WebhookErrorLog) error
}

// ErrorLogRepository persists failed webhook events for manual reconciliation.
type ErrorLogRepository struct {
	db *gorm.DB
}

func NewErrorLogRepository(db *gorm.DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

func (r *ErrorLogRepository) Quarantine(ctx context.Context, entry *models.WebhookErrorLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// Processor dispatches verified provider events. Every path acks: processing
// failures are quarantined to the error log, never bounced back to the
// provider as retryable.
type Processor struct {
	provider string
	settler  settler
	risk     signalRecorder
	errs     errorSink
	logg     *logger.Logger
}

type ProcessorParams struct {
	Provider  string
	Settler   settler
	Risk      signalRecorder
	ErrorSink errorSink
	Logger    *logger.Logger
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if strings.TrimSpace(params.Provider) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider name required")
	}
	if params.Settler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settler required")
	}
	if params.Risk == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "risk recorder required")
	}
	if params.ErrorSink == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "error sink required")
	}
	return &Processor{
		provider: params.Provider,
		settler:  params.Settler,
		risk:     params.Risk,
		errs:     params.ErrorSink,
		logg:     params.Logger,
	}, nil
}

// Process parses and dispatches one verified event body. It returns the event
// type and outcome label; it never returns an error because the ack decision
// is already made by the time the body is parsed.
func (p *Processor) Process(ctx context.Context, body []byte) (string, string) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		p.quarantine(ctx, "malformed", body, err)
		return "malformed", OutcomeQuarantined
	}
	if strings.TrimSpace(envelope.Type) == "" {
		p.quarantine(ctx, "malformed", body, pkgerrors.New(pkgerrors.CodeValidation, "event type missing"))
		return "malformed", OutcomeQuarantined
	}

	switch envelope.Type {
	case EventPaymentSuccess:
		return envelope.Type, p.handlePaymentSuccess(ctx, envelope, body)
	case EventDisputeCreated, EventRefunded:
		return envelope.Type, p.handleSignal(ctx, envelope, body, risk.SignalDispute)
	case EventChargebackCreated:
		return envelope.Type, p.handleSignal(ctx, envelope, body, risk.SignalChargeback)
	default:
		if p.logg != nil {
			p.logg.Info(p.logg.WithField(ctx, "event_type", envelope.Type), "webhook.event_ignored")
		}
		return envelope.Type, OutcomeIgnored
	}
}

func (p *Processor) handlePaymentSuccess(ctx context.Context, envelope Envelope, body []byte) string {
	var data successData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		p.quarantine(ctx, envelope.Type, body, err)
		return OutcomeQuarantined
	}
	if data.OrderID == uuid.Nil || data.TransactionID == "" {
		p.quarantine(ctx, envelope.Type, body, pkgerrors.New(pkgerrors.CodeValidation, "order_id and transaction_id are required"))
		return OutcomeQuarantined
	}

	currency := enums.Currency(data.Currency)
	if data.Currency == "" {
		currency = enums.CurrencyUSD
	}

	result, err := p.settler.Settle(ctx, settlement.PaymentData{
		OrderID:       data.OrderID,
		TransactionID: data.TransactionID,
		Amount:        data.Amount,
		Currency:      currency,
		PaymentMethod: data.PaymentMethod,
		Payer:         data.Payer,
	})
	if err != nil {
		p.quarantine(ctx, envelope.Type, body, err)
		return OutcomeQuarantined
	}
	if result.AlreadySettled {
		return OutcomeDuplicate
	}

	// Settled counters are a fail-open signal: a recording failure never
	// rolls back money that already moved.
	for _, storeID := range result.VendorStoreIDs {
		if err := p.risk.RecordSignal(ctx, storeID, risk.SignalSettled); err != nil {
			decision := policy.Decide(policy.ActionSignalRecord, err)
			if p.logg != nil {
				p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
					"store_id": storeID.String(),
					"error":    err.Error(),
					"reason":   decision.Reason,
				}), "webhook.settled_signal_failed")
			}
		}
	}
	return OutcomeSettled
}

func (p *Processor) handleSignal(ctx context.Context, envelope Envelope, body []byte, kind risk.SignalKind) string {
	var data signalData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		p.quarantine(ctx, envelope.Type, body, err)
		return OutcomeQuarantined
	}
	if data.VendorStoreID == uuid.Nil {
		p.quarantine(ctx, envelope.Type, body, pkgerrors.New(pkgerrors.CodeValidation, "vendor_store_id is required"))
		return OutcomeQuarantined
	}

	if err := p.risk.RecordSignal(ctx, data.VendorStoreID, kind); err != nil {
		p.quarantine(ctx, envelope.Type, body, err)
		return OutcomeQuarantined
	}
	return OutcomeSignal
}

func (p *Processor) quarantine(ctx context.Context, eventType string, body []byte, cause error) {
	entry := &models.WebhookErrorLog{
		Provider:  p.provider,
		EventType: eventType,
		Payload:   json.RawMessage(body),
		Error:     cause.Error(),
	}
	if err := p.errs.Quarantine(ctx, entry); err != nil && p.logg != nil {
		p.logg.Error(p.logg.WithField(ctx, "event_type", eventType), "webhook.quarantine_failed", err)
	}
	if p.logg != nil {
		p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
			"event_type": eventType,
			"error":      cause.Error(),
		}), "webhook.event_quarantined")
	}
}
