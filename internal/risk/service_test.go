package risk

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
)

type txClient struct {
	db *gorm.DB
}

func (c *txClient) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := c.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func newRiskDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS store_risk_state (
  store_id TEXT PRIMARY KEY,
  risk_level TEXT NOT NULL DEFAULT 'NORMAL',
  payouts_frozen BOOLEAN NOT NULL DEFAULT 0,
  manual_flag BOOLEAN NOT NULL DEFAULT 0,
  chargeback_count INTEGER NOT NULL DEFAULT 0,
  dispute_count INTEGER NOT NULL DEFAULT 0,
  settled_count INTEGER NOT NULL DEFAULT 0,
  last_risk_evaluated DATETIME,
  reason TEXT,
  note TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS risk_events (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  type TEXT NOT NULL,
  severity TEXT NOT NULL,
  prev_level TEXT NOT NULL,
  next_level TEXT NOT NULL,
  details TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  vendor_store_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  platform_fee NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  provider_transaction_id TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS job_run_state (
  job_name TEXT PRIMARY KEY,
  locked_at DATETIME,
  expires_at DATETIME,
  last_report TEXT,
  updated_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func newRiskService(t *testing.T, db *gorm.DB, now func() time.Time) Service {
	t.Helper()
	jobs, err := jobrun.NewStore(db)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		TransactionRunner: &txClient{db: db},
		Jobs:              jobs,
		Config:            defaultRiskConfig(),
		LockTTL:           time.Hour,
		Now:               now,
	})
	require.NoError(t, err)
	return svc
}

func seedRiskState(t *testing.T, db *gorm.DB, state models.StoreRiskState) uuid.UUID {
	t.Helper()
	if state.StoreID == uuid.Nil {
		state.StoreID = uuid.New()
	}
	if state.RiskLevel == "" {
		state.RiskLevel = enums.RiskLevelNormal
	}
	require.NoError(t, db.Create(&state).Error)
	return state.StoreID
}

func seedSettledTransaction(t *testing.T, db *gorm.DB, storeID uuid.UUID, amount string, createdAt time.Time) {
	t.Helper()
	record := models.TransactionRecord{
		ID:            uuid.New(),
		VendorStoreID: storeID,
		OrderID:       uuid.New(),
		Amount:        decimal.RequireFromString(amount),
		PlatformFee:   decimal.Zero,
		Currency:      enums.CurrencyUSD,
		Type:          enums.TransactionTypeSale,
		Status:        enums.TransactionStatusCompleted,
		TransactionID: "txn_" + uuid.NewString(),
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(&record).Error)
}

func countRiskEvents(t *testing.T, db *gorm.DB, storeID uuid.UUID, eventType enums.RiskEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.RiskEvent{}).
		Where("store_id = ? AND type = ?", storeID, eventType).
		Count(&count).Error)
	return count
}

func TestFreezeAndUnfreeze(t *testing.T) {
	db := newRiskDB(t)
	svc := newRiskService(t, db, nil)
	ctx := context.Background()
	storeID := uuid.New()

	state, err := svc.Freeze(ctx, FreezeInput{
		StoreID: storeID,
		Level:   enums.RiskLevelFrozen,
		Reason:  "confirmed fraud pattern",
	})
	require.NoError(t, err)
	require.Equal(t, enums.RiskLevelFrozen, state.RiskLevel)
	require.True(t, state.PayoutsFrozen)
	require.EqualValues(t, 1, countRiskEvents(t, db, storeID, enums.RiskEventManualFreeze))

	state, err = svc.Unfreeze(ctx, UnfreezeInput{StoreID: storeID, Reason: "investigation cleared"})
	require.NoError(t, err)
	require.Equal(t, enums.RiskLevelHigh, state.RiskLevel, "frozen level steps down to high on unfreeze")
	require.False(t, state.PayoutsFrozen)
	require.EqualValues(t, 1, countRiskEvents(t, db, storeID, enums.RiskEventManualUnfreeze))
}

func TestSetRiskLevelRejectsShortReason(t *testing.T) {
	db := newRiskDB(t)
	svc := newRiskService(t, db, nil)

	_, err := svc.SetRiskLevel(context.Background(), SetLevelInput{
		StoreID: uuid.New(),
		Level:   enums.RiskLevelWatch,
		Reason:  "ok",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetRiskLevelFrozenForcesPayoutsFrozen(t *testing.T) {
	db := newRiskDB(t)
	svc := newRiskService(t, db, nil)
	storeID := uuid.New()

	state, err := svc.SetRiskLevel(context.Background(), SetLevelInput{
		StoreID: storeID,
		Level:   enums.RiskLevelFrozen,
		Reason:  "repeat chargeback offender",
	})
	require.NoError(t, err)
	require.True(t, state.PayoutsFrozen)

	// An explicit unfreeze request cannot override a FROZEN level.
	unfrozen := false
	state, err = svc.SetRiskLevel(context.Background(), SetLevelInput{
		StoreID:            storeID,
		Level:              enums.RiskLevelFrozen,
		Reason:             "still frozen after review",
		ForcePayoutsFrozen: &unfrozen,
	})
	require.NoError(t, err)
	require.True(t, state.PayoutsFrozen)
}

func TestRecordSignalIncrementsCounters(t *testing.T) {
	db := newRiskDB(t)
	svc := newRiskService(t, db, nil)
	ctx := context.Background()
	storeID := uuid.New()

	require.NoError(t, svc.RecordSignal(ctx, storeID, SignalChargeback))
	require.NoError(t, svc.RecordSignal(ctx, storeID, SignalChargeback))
	require.NoError(t, svc.RecordSignal(ctx, storeID, SignalDispute))
	require.NoError(t, svc.RecordSignal(ctx, storeID, SignalSettled))

	state, err := svc.GetState(ctx, storeID)
	require.NoError(t, err)
	require.Equal(t, 2, state.ChargebackCount)
	require.Equal(t, 1, state.DisputeCount)
	require.Equal(t, 1, state.SettledCount)
	require.EqualValues(t, 4, countRiskEvents(t, db, storeID, enums.RiskEventSignalRecorded))
}

// interleavedTxRunner applies an out-of-band write just before the
// transaction opens, standing in for a concurrent webhook delivery.
type interleavedTxRunner struct {
	db     *gorm.DB
	before func()
}

func (c *interleavedTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if c.before != nil {
		c.before()
		c.before = nil
	}
	return (&txClient{db: c.db}).WithTx(ctx, fn)
}

func TestRecordSignalKeepsConcurrentIncrement(t *testing.T) {
	db := newRiskDB(t)
	ctx := context.Background()
	storeID := seedRiskState(t, db, models.StoreRiskState{SettledCount: 10})

	runner := &interleavedTxRunner{db: db, before: func() {
		require.NoError(t, db.Exec(
			"UPDATE store_risk_state SET chargeback_count = chargeback_count + 5 WHERE store_id = ?",
			storeID,
		).Error)
	}}

	jobs, err := jobrun.NewStore(db)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		TransactionRunner: runner,
		Jobs:              jobs,
		Config:            defaultRiskConfig(),
		LockTTL:           time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, svc.RecordSignal(ctx, storeID, SignalChargeback))

	state, err := svc.GetState(ctx, storeID)
	require.NoError(t, err)
	require.Equal(t, 6, state.ChargebackCount, "signal must land on top of the concurrent update")
}

func TestEvaluatePersistsTransition(t *testing.T) {
	db := newRiskDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newRiskService(t, db, func() time.Time { return now })
	ctx := context.Background()

	storeID := seedRiskState(t, db, models.StoreRiskState{
		ChargebackCount: 5,
		SettledCount:    40,
	})

	result, err := svc.Evaluate(ctx, storeID, false)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, enums.RiskLevelNormal, result.PrevLevel)
	require.Equal(t, enums.RiskLevelFrozen, result.NextLevel)

	state, err := svc.GetState(ctx, storeID)
	require.NoError(t, err)
	require.Equal(t, enums.RiskLevelFrozen, state.RiskLevel)
	require.True(t, state.PayoutsFrozen)
	require.NotNil(t, state.LastRiskEvaluated)
	require.EqualValues(t, 1, countRiskEvents(t, db, storeID, enums.RiskEventAutoEvaluation))
}

func TestEvaluateDryRunWritesNothing(t *testing.T) {
	db := newRiskDB(t)
	svc := newRiskService(t, db, nil)
	ctx := context.Background()

	storeID := seedRiskState(t, db, models.StoreRiskState{
		ChargebackCount: 5,
		SettledCount:    40,
	})

	result, err := svc.Evaluate(ctx, storeID, true)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, enums.RiskLevelFrozen, result.NextLevel)

	state, err := svc.GetState(ctx, storeID)
	require.NoError(t, err)
	require.Equal(t, enums.RiskLevelNormal, state.RiskLevel)
	require.False(t, state.PayoutsFrozen)
	require.EqualValues(t, 0, countRiskEvents(t, db, storeID, enums.RiskEventAutoEvaluation))
}

func TestEvaluateVolumeSpikeSignal(t *testing.T) {
	db := newRiskDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newRiskService(t, db, func() time.Time { return now })
	ctx := context.Background()

	storeID := seedRiskState(t, db, models.StoreRiskState{SettledCount: 100})

	// 30 days of 1.00/day trailing history, then 6.00 inside the last 24h.
	for day := 2; day <= 31; day++ {
		seedSettledTransaction(t, db, storeID, "1.00", now.Add(-time.Duration(day)*24*time.Hour))
	}
	seedSettledTransaction(t, db, storeID, "6.00", now.Add(-2*time.Hour))

	result, err := svc.Evaluate(ctx, storeID, false)
	require.NoError(t, err)
	require.Equal(t, enums.RiskLevelHigh, result.NextLevel)
	require.Contains(t, result.Reason, "volume spike")
}

func TestRunDailyEvalProducesReport(t *testing.T) {
	db := newRiskDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newRiskService(t, db, func() time.Time { return now })
	ctx := context.Background()

	badStore := seedRiskState(t, db, models.StoreRiskState{
		ChargebackCount: 5,
		SettledCount:    40,
	})
	cleanStore := seedRiskState(t, db, models.StoreRiskState{SettledCount: 40})

	report, err := svc.RunDailyEval(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, report.Evaluated)
	require.Equal(t, 1, report.Changed)
	require.Equal(t, 1, report.Frozen)
	require.Equal(t, 0, report.Errors)

	badState, err := svc.GetState(ctx, badStore)
	require.NoError(t, err)
	require.Equal(t, enums.RiskLevelFrozen, badState.RiskLevel)

	cleanState, err := svc.GetState(ctx, cleanStore)
	require.NoError(t, err)
	require.Equal(t, enums.RiskLevelNormal, cleanState.RiskLevel)

	status, err := svc.JobStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Nil(t, status.LockedAt, "lock released after the run")
	require.Contains(t, string(status.LastReport), `"evaluated":2`)
}

func TestRunDailyEvalDryRunKeepsLastReport(t *testing.T) {
	db := newRiskDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newRiskService(t, db, func() time.Time { return now })
	ctx := context.Background()

	seedRiskState(t, db, models.StoreRiskState{SettledCount: 40})

	_, err := svc.RunDailyEval(ctx, false)
	require.NoError(t, err)
	status, err := svc.JobStatus(ctx)
	require.NoError(t, err)
	realReport := string(status.LastReport)
	require.Contains(t, realReport, `"dry_run":false`)

	dry, err := svc.RunDailyEval(ctx, true)
	require.NoError(t, err)
	require.True(t, dry.DryRun)
	require.Equal(t, 1, dry.Evaluated)

	status, err = svc.JobStatus(ctx)
	require.NoError(t, err)
	require.Nil(t, status.LockedAt, "lock released after the dry run")
	require.Equal(t, realReport, string(status.LastReport), "dry run must not replace the stored report")
}

type failingPageRepo struct {
	Repository
}

func (r *failingPageRepo) ListStoreIDs(context.Context, *uuid.UUID, int) ([]uuid.UUID, error) {
	return nil, fmt.Errorf("connection reset")
}

func TestRunDailyEvalReportsPageFailure(t *testing.T) {
	db := newRiskDB(t)
	ctx := context.Background()
	seedRiskState(t, db, models.StoreRiskState{SettledCount: 40})

	var logBuf bytes.Buffer
	jobs, err := jobrun.NewStore(db)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:              &failingPageRepo{Repository: NewRepository(db)},
		TransactionRunner: &txClient{db: db},
		Jobs:              jobs,
		Config:            defaultRiskConfig(),
		LockTTL:           time.Hour,
		Logger:            logger.New(logger.Options{Output: &logBuf}),
	})
	require.NoError(t, err)

	report, err := svc.RunDailyEval(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 0, report.Evaluated)
	require.Equal(t, 1, report.Errors)
	require.Contains(t, logBuf.String(), "page_failed")
	require.Contains(t, logBuf.String(), "connection reset")
}

func TestRunDailyEvalBusyLock(t *testing.T) {
	db := newRiskDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newRiskService(t, db, func() time.Time { return now })
	ctx := context.Background()

	jobs, err := jobrun.NewStore(db)
	require.NoError(t, err)
	require.NoError(t, jobs.Acquire(ctx, JobName, now, time.Hour))

	_, err = svc.RunDailyEval(ctx, false)
	require.ErrorIs(t, err, jobrun.ErrJobBusy)
}

func TestSummaryAggregates(t *testing.T) {
	db := newRiskDB(t)
	svc := newRiskService(t, db, nil)
	ctx := context.Background()

	seedRiskState(t, db, models.StoreRiskState{RiskLevel: enums.RiskLevelNormal})
	seedRiskState(t, db, models.StoreRiskState{RiskLevel: enums.RiskLevelNormal, Reason: "chargeback rate above watch threshold"})
	seedRiskState(t, db, models.StoreRiskState{RiskLevel: enums.RiskLevelFrozen, PayoutsFrozen: true, Reason: "chargeback rate above watch threshold"})

	summary, err := svc.Summary(ctx, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, summary.ByLevel["NORMAL"])
	require.EqualValues(t, 1, summary.ByLevel["FROZEN"])
	require.EqualValues(t, 1, summary.FrozenCount)
	require.Len(t, summary.TopReasons, 1)
	require.Equal(t, "chargeback rate above watch threshold", summary.TopReasons[0].Reason)
	require.EqualValues(t, 2, summary.TopReasons[0].Count)
}
