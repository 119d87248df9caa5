package trust

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

// StateFilter narrows a trust state listing.
type StateFilter struct {
	Tier *enums.TrustTier
}

// TierCount is a summary aggregation row.
type TierCount struct {
	TrustTier enums.TrustTier `gorm:"column:trust_tier"`
	Count     int64           `gorm:"column:count"`
}

// Repository manages trust state, events and the settlement-derived signals
// a recompute reads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindState(ctx context.Context, storeID uuid.UUID) (*models.StoreTrustState, error)
	UpsertState(ctx context.Context, state *models.StoreTrustState) error
	AppendEvent(ctx context.Context, event *models.TrustEvent) error
	ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreTrustState, error)
	ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.TrustEvent, string, error)
	ListStoreIDs(ctx context.Context, afterStore *uuid.UUID, limit int) ([]uuid.UUID, error)
	CountByTier(ctx context.Context) ([]TierCount, error)
	SettledVolume(ctx context.Context, storeID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	FirstSettledAt(ctx context.Context, storeID uuid.UUID) (*time.Time, error)
	RiskCounters(ctx context.Context, storeID uuid.UUID) (settled int, disputes int, err error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a trust repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindState(ctx context.Context, storeID uuid.UUID) (*models.StoreTrustState, error) {
	var state models.StoreTrustState
	err := r.db.WithContext(ctx).Where("store_id = ?", storeID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repository) UpsertState(ctx context.Context, state *models.StoreTrustState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

func (r *repository) AppendEvent(ctx context.Context, event *models.TrustEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreTrustState, error) {
	q := r.db.WithContext(ctx).Model(&models.StoreTrustState{})
	if filter.Tier != nil {
		q = q.Where("trust_tier = ?", *filter.Tier)
	}

	var states []models.StoreTrustState
	err := q.Order("updated_at DESC").
		Limit(pagination.NormalizeLimit(params.Limit)).
		Find(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}

func (r *repository) ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.TrustEvent, string, error) {
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

	var events []models.TrustEvent
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

// ListStoreIDs walks the union of stores that already carry a trust state and
// stores that have settled transactions, so the first recompute after a
// store's first settlement picks it up.
func (r *repository) ListStoreIDs(ctx context.Context, afterStore *uuid.UUID, limit int) ([]uuid.UUID, error) {
	base := `
SELECT store_id FROM (
  SELECT store_id FROM store_trust_state
  UNION
  SELECT vendor_store_id AS store_id FROM transactions
) AS stores`

	var ids []uuid.UUID
	var err error
	if afterStore != nil {
		err = r.db.WithContext(ctx).
			Raw(base+" WHERE store_id > ? ORDER BY store_id ASC LIMIT ?", *afterStore, limit).
			Scan(&ids).Error
	} else {
		err = r.db.WithContext(ctx).
			Raw(base+" ORDER BY store_id ASC LIMIT ?", limit).
			Scan(&ids).Error
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CountByTier(ctx context.Context) ([]TierCount, error) {
	var counts []TierCount
	err := r.db.WithContext(ctx).
		Model(&models.StoreTrustState{}).
		Select("trust_tier, COUNT(*) AS count").
		Group("trust_tier").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
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

// FirstSettledAt is the store's earliest completed transaction, nil when the
// store has never settled.
func (r *repository) FirstSettledAt(ctx context.Context, storeID uuid.UUID) (*time.Time, error) {
	var first *time.Time
	err := r.db.WithContext(ctx).
		Model(&models.TransactionRecord{}).
		Select("MIN(created_at)").
		Where("vendor_store_id = ? AND status = ?", storeID, enums.TransactionStatusCompleted).
		Scan(&first).Error
	if err != nil {
		return nil, err
	}
	return first, nil
}

// RiskCounters reads the settled and dispute counters the risk engine keeps
// for the store. Absent state reads as zero.
func (r *repository) RiskCounters(ctx context.Context, storeID uuid.UUID) (int, int, error) {
	var state models.StoreRiskState
	err := r.db.WithContext(ctx).Where("store_id = ?", storeID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return state.SettledCount, state.DisputeCount, nil
}
