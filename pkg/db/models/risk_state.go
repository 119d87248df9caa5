package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// StoreRiskState is the mutable per-store enforcement document.
// RiskLevel == FROZEN always implies PayoutsFrozen; the reverse does not hold,
// an admin may freeze payouts at any level pending investigation.
type StoreRiskState struct {
	StoreID           uuid.UUID       `gorm:"column:store_id;type:uuid;primaryKey"`
	RiskLevel         enums.RiskLevel `gorm:"column:risk_level;type:text;not null;default:'NORMAL'"`
	PayoutsFrozen     bool            `gorm:"column:payouts_frozen;not null;default:false"`
	ManualFlag        bool            `gorm:"column:manual_flag;not null;default:false"`
	ChargebackCount   int             `gorm:"column:chargeback_count;not null;default:0"`
	DisputeCount      int             `gorm:"column:dispute_count;not null;default:0"`
	SettledCount      int             `gorm:"column:settled_count;not null;default:0"`
	LastRiskEvaluated *time.Time      `gorm:"column:last_risk_evaluated"`
	Reason            string          `gorm:"column:reason"`
	Note              *string         `gorm:"column:note"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName matches the persisted layout.
func (StoreRiskState) TableName() string { return "store_risk_state" }

// RiskEvent is the append-only audit trail entry for risk transitions and
// admin actions. Never mutated or deleted.
type RiskEvent struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID   uuid.UUID           `gorm:"column:store_id;type:uuid;not null;index"`
	Type      enums.RiskEventType `gorm:"column:type;type:text;not null"`
	Severity  enums.RiskSeverity  `gorm:"column:severity;type:text;not null"`
	PrevLevel enums.RiskLevel     `gorm:"column:prev_level;type:text;not null"`
	NextLevel enums.RiskLevel     `gorm:"column:next_level;type:text;not null"`
	Details   json.RawMessage     `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// TableName matches the persisted layout.
func (RiskEvent) TableName() string { return "risk_events" }
