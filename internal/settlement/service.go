package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
)

// PaymentData is the provider-confirmed payment a settlement starts from.
type PaymentData struct {
	OrderID       uuid.UUID
	TransactionID string
	Amount        decimal.Decimal
	Currency      enums.Currency
	PaymentMethod string
	Payer         json.RawMessage
}

// Result reports what a settle call did, so the webhook dispatcher can feed
// the per-vendor governance signals.
type Result struct {
	AlreadySettled bool
	VendorStoreIDs []uuid.UUID
}

// Notifier pushes the buyer-facing settled notification after commit.
type Notifier interface {
	OrderSettled(ctx context.Context, orderID, buyerUserID uuid.UUID, amount decimal.Decimal, currency enums.Currency) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service executes the atomic settle flow for confirmed payments.
type Service struct {
	repo           Repository
	txRunner       txRunner
	guard          *Guard
	notifier       Notifier
	commissionRate decimal.Decimal
	logg           *logger.Logger
	now            func() time.Time
}

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Guard             *Guard
	Notifier          Notifier
	CommissionRate    decimal.Decimal
	Logger            *logger.Logger
	Now               func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement guard required")
	}
	if params.CommissionRate.IsNegative() || params.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission rate outside [0,1]")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:           params.Repo,
		txRunner:       params.TransactionRunner,
		guard:          params.Guard,
		notifier:       params.Notifier,
		commissionRate: params.CommissionRate,
		logg:           params.Logger,
		now:            now,
	}, nil
}

// Settle transitions the order to paid and distributes funds in one
// transaction. Re-delivery of an already-settled order is a silent no-op.
func (s *Service) Settle(ctx context.Context, payment PaymentData) (*Result, error) {
	if payment.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if payment.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if !payment.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, payment.OrderID.String())
	}

	var settledOrder *models.Order
	var vendorStoreIDs []uuid.UUID
	alreadySettled := false

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrderForUpdate(ctx, payment.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.Status == enums.OrderStatusPaid {
			alreadySettled = true
			return nil
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order not awaiting payment").
				WithDetails(map[string]any{"status": string(order.Status)})
		}

		if err := s.guard.Check(ctx, order.BuyerUserID, order.ID); err != nil {
			return err
		}

		shares, feeTotal, err := ComputeSplit(order.Items, s.commissionRate)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "compute split")
		}

		now := s.now()
		order.TransactionID = &payment.TransactionID
		if payment.PaymentMethod != "" {
			order.PaymentMethod = &payment.PaymentMethod
		}
		if len(payment.Payer) > 0 {
			order.PaymentDetail = payment.Payer
		}
		if err := repo.MarkOrderPaid(ctx, order, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}

		vendorStoreIDs = vendorStoreIDs[:0]
		for _, share := range shares {
			vendorStoreIDs = append(vendorStoreIDs, share.VendorStoreID)
			record := &models.TransactionRecord{
				ID:            uuid.New(),
				VendorStoreID: share.VendorStoreID,
				OrderID:       order.ID,
				Amount:        share.Net,
				PlatformFee:   share.Fee,
				Currency:      order.Currency,
				Type:          enums.TransactionTypeSale,
				Status:        enums.TransactionStatusCompleted,
				TransactionID: payment.TransactionID,
			}
			if err := repo.CreateTransaction(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction record")
			}
			if err := repo.IncrementBalance(ctx, share.VendorStoreID, share.Net, order.Currency, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment vendor balance")
			}
		}

		if err := repo.CreatePlatformRevenue(ctx, &models.PlatformRevenueRecord{
			ID:            uuid.New(),
			OrderID:       order.ID,
			Amount:        feeTotal,
			Source:        "commission",
			TransactionID: payment.TransactionID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create platform revenue")
		}

		settledOrder = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if alreadySettled {
		if s.logg != nil {
			s.logg.Info(ctx, "settlement.duplicate_delivery")
		}
		return &Result{AlreadySettled: true}, nil
	}

	// Post-commit side effects are best effort. Money already moved.
	if markErr := s.guard.Mark(ctx, settledOrder.BuyerUserID, settledOrder.ID); markErr != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", markErr.Error()), "settlement.lock_mark_failed")
	}
	if s.notifier != nil {
		if notifyErr := s.notifier.OrderSettled(ctx, settledOrder.ID, settledOrder.BuyerUserID, payment.Amount, settledOrder.Currency); notifyErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", notifyErr.Error()), "settlement.notify_failed")
		}
	}

	if s.logg != nil {
		s.logg.Info(ctx, "settlement.completed")
	}
	return &Result{VendorStoreIDs: vendorStoreIDs}, nil
}
