package models

import (
	"encoding/json"
	"time"
)

// JobRunState is the single-flight lock document for a named batch job.
// A run acquires it by writing LockedAt/ExpiresAt where the row is absent or
// expired; a crashed runner self-heals once ExpiresAt passes.
type JobRunState struct {
	JobName    string          `gorm:"column:job_name;primaryKey"`
	LockedAt   *time.Time      `gorm:"column:locked_at"`
	ExpiresAt  *time.Time      `gorm:"column:expires_at"`
	LastReport json.RawMessage `gorm:"column:last_report;type:jsonb"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName matches the persisted layout.
func (JobRunState) TableName() string { return "job_run_state" }
