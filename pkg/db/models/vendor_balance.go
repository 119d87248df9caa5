package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// VendorBalance aggregates a vendor's earnings. The settlement core only ever
// increments it; withdrawals are handled by an external payout subsystem.
type VendorBalance struct {
	VendorStoreID uuid.UUID       `gorm:"column:vendor_store_id;type:uuid;primaryKey"`
	Available     decimal.Decimal `gorm:"column:available;type:numeric(18,2);not null;default:0"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(18,2);not null;default:0"`
	Currency      enums.Currency  `gorm:"column:currency;type:text;not null;default:'USD'"`
	LastUpdated   time.Time       `gorm:"column:last_updated;autoUpdateTime"`
}

// TableName keeps balances short, matching the persisted layout.
func (VendorBalance) TableName() string { return "balances" }
