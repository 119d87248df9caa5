package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// Repository manages the money-movement writes of a settlement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, order *models.Order, paidAt time.Time) error
	CreateTransaction(ctx context.Context, record *models.TransactionRecord) error
	IncrementBalance(ctx context.Context, vendorStoreID uuid.UUID, amount decimal.Decimal, currency enums.Currency, at time.Time) error
	CreatePlatformRevenue(ctx context.Context, record *models.PlatformRevenueRecord) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOrderForUpdate loads the order and its items under a row lock so a
// concurrent settlement of the same order serializes on the database.
func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	q := r.db.WithContext(ctx).Preload("Items")
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "orders"}})
	}

	var order models.Order
	if err := q.Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) MarkOrderPaid(ctx context.Context, order *models.Order, paidAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":         enums.OrderStatusPaid,
			"transaction_id": order.TransactionID,
			"payment_method": order.PaymentMethod,
			"payment_detail": order.PaymentDetail,
			"paid_at":        paidAt,
		}).Error
}

func (r *repository) CreateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// IncrementBalance upserts the vendor row with atomic SQL increments, never
// a read-modify-write from Go.
func (r *repository) IncrementBalance(ctx context.Context, vendorStoreID uuid.UUID, amount decimal.Decimal, currency enums.Currency, at time.Time) error {
	balance := models.VendorBalance{
		VendorStoreID: vendorStoreID,
		Available:     amount,
		Total:         amount,
		Currency:      currency,
		LastUpdated:   at,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vendor_store_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"available":    gorm.Expr("available + ?", amount),
			"total":        gorm.Expr("total + ?", amount),
			"last_updated": at,
		}),
	}).Create(&balance).Error
}

func (r *repository) CreatePlatformRevenue(ctx context.Context, record *models.PlatformRevenueRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
