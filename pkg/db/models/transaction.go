package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// TransactionRecord is an immutable ledger entry crediting a vendor for its
// share of a settled order. At most one row ever exists per (order, vendor),
// enforced by a unique index.
type TransactionRecord struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorStoreID uuid.UUID               `gorm:"column:vendor_store_id;type:uuid;not null;uniqueIndex:idx_transactions_order_vendor,priority:2"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_transactions_order_vendor,priority:1"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null"`
	PlatformFee   decimal.Decimal         `gorm:"column:platform_fee;type:numeric(18,2);not null"`
	Currency      enums.Currency          `gorm:"column:currency;type:text;not null"`
	Type          enums.TransactionType   `gorm:"column:type;type:text;not null"`
	Status        enums.TransactionStatus `gorm:"column:status;type:text;not null"`
	TransactionID string                  `gorm:"column:provider_transaction_id;not null"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the ledger under the transactions table.
func (TransactionRecord) TableName() string { return "transactions" }
