package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlatformRevenueRecord is the immutable platform-fee entry for a settled
// order, one per order.
type PlatformRevenueRecord struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Source        string          `gorm:"column:source;not null;default:'commission'"`
	TransactionID string          `gorm:"column:provider_transaction_id;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName matches the persisted layout.
func (PlatformRevenueRecord) TableName() string { return "platform_revenue" }
