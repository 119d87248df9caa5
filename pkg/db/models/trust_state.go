package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// StoreTrustState is the derived per-store reputation document. It is
// recomputed from signals, never hand-edited; the admin surface can only
// trigger a recompute.
type StoreTrustState struct {
	StoreID            uuid.UUID       `gorm:"column:store_id;type:uuid;primaryKey"`
	TrustScore         decimal.Decimal `gorm:"column:trust_score;type:numeric(6,2);not null;default:0"`
	TrustTier          enums.TrustTier `gorm:"column:trust_tier;type:text;not null;default:'STANDARD'"`
	ListingBoostFactor decimal.Decimal `gorm:"column:listing_boost_factor;type:numeric(4,2);not null;default:1"`
	PayoutDelayHours   int             `gorm:"column:payout_delay_hours;not null;default:48"`
	TrustReasonSummary string          `gorm:"column:trust_reason_summary"`
	LastRecomputed     *time.Time      `gorm:"column:last_recomputed"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName matches the persisted layout.
func (StoreTrustState) TableName() string { return "store_trust_state" }

// TrustEvent records a tier change with its before/after score. Append-only.
type TrustEvent struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID   uuid.UUID       `gorm:"column:store_id;type:uuid;not null;index"`
	PrevTier  enums.TrustTier `gorm:"column:prev_tier;type:text;not null"`
	NextTier  enums.TrustTier `gorm:"column:next_tier;type:text;not null"`
	PrevScore decimal.Decimal `gorm:"column:prev_score;type:numeric(6,2);not null"`
	NextScore decimal.Decimal `gorm:"column:next_score;type:numeric(6,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName matches the persisted layout.
func (TrustEvent) TableName() string { return "trust_events" }
