package risk

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

// StateFilter narrows a risk state listing.
type StateFilter struct {
	Level  *enums.RiskLevel
	Frozen *bool
}

// LevelCount is a summary aggregation row.
type LevelCount struct {
	RiskLevel enums.RiskLevel `gorm:"column:risk_level"`
	Count     int64           `gorm:"column:count"`
}

// ReasonCount is a summary aggregation row over current state reasons.
type ReasonCount struct {
	Reason string `gorm:"column:reason" json:"reason"`
	Count  int64  `gorm:"column:count" json:"count"`
}

// Repository manages risk state, events and the transaction-volume signals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindState(ctx context.Context, storeID uuid.UUID) (*models.StoreRiskState, error)
	FindStateForUpdate(ctx context.Context, storeID uuid.UUID) (*models.StoreRiskState, error)
	UpsertState(ctx context.Context, state *models.StoreRiskState) error
	AppendEvent(ctx context.Context, event *models.RiskEvent) error
	ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreRiskState, error)
	ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.RiskEvent, string, error)
	ListStoreIDs(ctx context.Context, afterStore *uuid.UUID, limit int) ([]uuid.UUID, error)
	CountByLevel(ctx context.Context, since time.Time) ([]LevelCount, error)
	CountFrozen(ctx context.Context) (int64, error)
	TopReasons(ctx context.Context, since time.Time, limit int) ([]ReasonCount, error)
	SettledVolume(ctx context.Context, storeID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a risk repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindState(ctx context.Context, storeID uuid.UUID) (*models.StoreRiskState, error) {
	var state models.StoreRiskState
	err := r.db.WithContext(ctx).Where("store_id = ?", storeID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// FindStateForUpdate loads the state under a row lock so concurrent signal
// deliveries for the same store serialize on the database.
func (r *repository) FindStateForUpdate(ctx context.Context, storeID uuid.UUID) (*models.StoreRiskState, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "store_risk_state"}})
	}

	var state models.StoreRiskState
	err := q.Where("store_id = ?", storeID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repository) UpsertState(ctx context.Context, state *models.StoreRiskState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.RiskEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreRiskState, error) {
	q := r.db.WithContext(ctx).Model(&models.StoreRiskState{})
	if filter.Level != nil {
		q = q.Where("risk_level = ?", *filter.Level)
	}
	if filter.Frozen != nil {
		q = q.Where("payouts_frozen = ?", *filter.Frozen)
	}

	var states []models.StoreRiskState
	if err := q.Order("updated_at DESC, store_id ASC").
		Limit(pagination.NormalizeLimit(params.Limit)).
		Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *repository) ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.RiskEvent, string, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	q := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var events []models.RiskEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(events) == limit {
		events = events[:limit-1]
		last := events[len(events)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return events, next, nil
}

func (r *repository) ListStoreIDs(ctx context.Context, afterStore *uuid.UUID, limit int) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).
		Model(&models.StoreRiskState{}).
		Order("store_id ASC").
		Limit(limit)
	if afterStore != nil {
		q = q.Where("store_id > ?", *afterStore)
	}

	var ids []uuid.UUID
	if err := q.Pluck("store_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CountByLevel(ctx context.Context, since time.Time) ([]LevelCount, error) {
	var counts []LevelCount
	q := r.db.WithContext(ctx).
		Model(&models.StoreRiskState{}).
		Select("risk_level, COUNT(*) AS count").
		Group("risk_level")
	if !since.IsZero() {
		q = q.Where("updated_at >= ?", since)
	}
	if err := q.Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repository) TopReasons(ctx context.Context, since time.Time, limit int) ([]ReasonCount, error) {
	var counts []ReasonCount
	q := r.db.WithContext(ctx).
		Model(&models.StoreRiskState{}).
		Select("reason, COUNT(*) AS count").
		Where("reason <> ''").
		Group("reason").
		Order("count DESC, reason ASC").
		Limit(limit)
	if !since.IsZero() {
		q = q.Where("updated_at >= ?", since)
	}
	if err := q.Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repository) CountFrozen(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StoreRiskState{}).
		Where("payouts_frozen = ?", true).
		Count(&count).Error
	return count, err
}

// SettledVolume sums the vendor's completed transaction amounts in [from, to).
func (r *repository) SettledVolume(ctx context.Context, storeID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Model(&models.TransactionRecord{}).
		Select("SUM(amount)").
		Where("vendor_store_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
			storeID, enums.TransactionStatusCompleted, from, to).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil || *raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}
