package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// Order is the checkout subsystem's entity. The settlement core only reads it
// and transitions status to paid; everything else is owned elsewhere.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerUserID   uuid.UUID         `gorm:"column:buyer_user_id;type:uuid;not null"`
	Currency      enums.Currency    `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status        enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending_payment'"`
	TransactionID *string           `gorm:"column:transaction_id"`
	PaymentMethod *string           `gorm:"column:payment_method"`
	PaymentDetail json.RawMessage   `gorm:"column:payment_detail;type:jsonb"`
	PaidAt        *time.Time        `gorm:"column:paid_at"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is a single vendor line on an order.
type OrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	VendorStoreID uuid.UUID       `gorm:"column:vendor_store_id;type:uuid;not null"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(18,2);not null"`
	Quantity      int             `gorm:"column:quantity;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (OrderItem) TableName() string { return "order_items" }
