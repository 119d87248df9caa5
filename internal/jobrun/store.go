package jobrun

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/baymarket/baymarket-backend/pkg/db/models"
)

// ErrJobBusy signals another runner currently holds the job lock. Callers
// treat it as a skip, not a failure.
var ErrJobBusy = errors.New("job already running")

// Store manages the per-job single-flight lock documents.
type Store interface {
	Acquire(ctx context.Context, jobName string, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, jobName string, report json.RawMessage) error
	Status(ctx context.Context, jobName string) (*models.JobRunState, error)
}

type store struct {
	db *gorm.DB
}

// NewStore returns a lock store bound to the provided database.
func NewStore(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, errors.New("jobrun store requires a database")
	}
	return &store{db: db}, nil
}

// Acquire takes the named lock when the row is absent, unlocked, or expired.
// The expiry window makes a crashed runner self-heal without operator action.
func (s *store) Acquire(ctx context.Context, jobName string, now time.Time, ttl time.Duration) error {
	if jobName == "" {
		return errors.New("job name is required")
	}
	if ttl <= 0 {
		return errors.New("lock ttl must be positive")
	}

	expires := now.Add(ttl)
	state := models.JobRunState{
		JobName:   jobName,
		LockedAt:  &now,
		ExpiresAt: &expires,
		UpdatedAt: now,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"locked_at":  now,
			"expires_at": expires,
			"updated_at": now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("job_run_state.locked_at IS NULL OR job_run_state.expires_at < ?", now),
		}},
	}).Create(&state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobBusy
	}
	return nil
}

// Release clears the lock and stores the run report on the same row.
func (s *store) Release(ctx context.Context, jobName string, report json.RawMessage) error {
	if jobName == "" {
		return errors.New("job name is required")
	}

	updates := map[string]any{
		"locked_at":  nil,
		"expires_at": nil,
		"updated_at": time.Now().UTC(),
	}
	if len(report) > 0 {
		updates["last_report"] = report
	}

	return s.db.WithContext(ctx).
		Model(&models.JobRunState{}).
		Where("job_name = ?", jobName).
		Updates(updates).Error
}

// Status returns the current lock document, nil when the job never ran.
func (s *store) Status(ctx context.Context, jobName string) (*models.JobRunState, error) {
	var state models.JobRunState
	err := s.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
