package notify

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
)

const eventOrderSettled = "order.settled"

// Publisher is the transport a notifier publishes through.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// PubSubPublisher adapts a Pub/Sub topic publisher to the Publisher interface,
// blocking until the broker acks the message.
type PubSubPublisher struct {
	pub *pubsub.Publisher
}

func NewPubSubPublisher(pub *pubsub.Publisher) (*PubSubPublisher, error) {
	if pub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pubsub publisher required")
	}
	return &PubSubPublisher{pub: pub}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	result := p.pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	_, err := result.Get(ctx)
	return err
}

type orderSettledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerUserID uuid.UUID `json:"buyer_user_id"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	SettledAt   time.Time `json:"settled_at"`
}

// Notifier publishes buyer-facing settlement notifications. Callers treat
// failures as best effort, money movement never depends on delivery.
type Notifier struct {
	pub  Publisher
	logg *logger.Logger
	now  func() time.Time
}

func NewNotifier(pub Publisher, logg *logger.Logger) (*Notifier, error) {
	if pub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "publisher required")
	}
	return &Notifier{
		pub:  pub,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// OrderSettled publishes the settled event for the buyer's order.
func (n *Notifier) OrderSettled(ctx context.Context, orderID, buyerUserID uuid.UUID, amount decimal.Decimal, currency enums.Currency) error {
	payload, err := json.Marshal(orderSettledEvent{
		OrderID:     orderID,
		BuyerUserID: buyerUserID,
		Amount:      amount.String(),
		Currency:    string(currency),
		SettledAt:   n.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode settled event")
	}

	attrs := map[string]string{
		"event_type": eventOrderSettled,
		"user_id":    buyerUserID.String(),
	}
	if err := n.pub.Publish(ctx, payload, attrs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish settled event")
	}

	if n.logg != nil {
		n.logg.Debug(n.logg.WithOrderID(ctx, orderID.String()), "notify.order_settled_published")
	}
	return nil
}
