package risk

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/pkg/config"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

// JobName identifies the daily evaluation batch in job_run_state.
const JobName = "risk-daily-eval"

const minReasonLen = 5

// topReasonLimit caps the reason breakdown returned by Summary.
const topReasonLimit = 5

// SignalKind classifies a webhook-driven counter increment.
type SignalKind string

const (
	SignalChargeback SignalKind = "chargeback"
	SignalDispute    SignalKind = "dispute"
	SignalSettled    SignalKind = "settled"
)

// EvalResult describes one store evaluation.
type EvalResult struct {
	StoreID   uuid.UUID       `json:"store_id"`
	PrevLevel enums.RiskLevel `json:"prev_level"`
	NextLevel enums.RiskLevel `json:"next_level"`
	Changed   bool            `json:"changed"`
	Reason    string          `json:"reason"`
	DryRun    bool            `json:"dry_run"`
}

// BatchReport summarizes a daily evaluation run.
type BatchReport struct {
	Evaluated  int       `json:"evaluated"`
	Changed    int       `json:"changed"`
	Frozen     int       `json:"frozen"`
	Unfrozen   int       `json:"unfrozen"`
	Errors     int       `json:"errors"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Summary is the admin dashboard aggregation.
type Summary struct {
	ByLevel     map[string]int64    `json:"by_level"`
	FrozenCount int64               `json:"frozen_count"`
	TopReasons  []ReasonCount       `json:"top_reasons"`
	LastRun     *models.JobRunState `json:"last_run,omitempty"`
}

// SetLevelInput carries a manual level override.
type SetLevelInput struct {
	StoreID            uuid.UUID
	Level              enums.RiskLevel
	Reason             string
	Note               *string
	ForcePayoutsFrozen *bool
}

// FreezeInput carries a manual freeze request.
type FreezeInput struct {
	StoreID uuid.UUID
	Level   enums.RiskLevel
	Reason  string
	Note    *string
}

// UnfreezeInput carries a manual unfreeze request.
type UnfreezeInput struct {
	StoreID uuid.UUID
	Reason  string
	Note    *string
}

// Service is the risk governance engine.
type Service interface {
	GetState(ctx context.Context, storeID uuid.UUID) (*models.StoreRiskState, error)
	ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreRiskState, error)
	ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.RiskEvent, string, error)
	Summary(ctx context.Context, window time.Duration) (*Summary, error)
	SetRiskLevel(ctx context.Context, input SetLevelInput) (*models.StoreRiskState, error)
	Freeze(ctx context.Context, input FreezeInput) (*models.StoreRiskState, error)
	Unfreeze(ctx context.Context, input UnfreezeInput) (*models.StoreRiskState, error)
	SetManualFlag(ctx context.Context, storeID uuid.UUID, flag bool, reason string) (*models.StoreRiskState, error)
	Evaluate(ctx context.Context, storeID uuid.UUID, dryRun bool) (*EvalResult, error)
	RecordSignal(ctx context.Context, storeID uuid.UUID, kind SignalKind) error
	RunDailyEval(ctx context.Context, dryRun bool) (*BatchReport, error)
	JobStatus(ctx context.Context) (*models.JobRunState, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	txRunner txRunner
	jobs     jobrun.Store
	cfg      config.RiskConfig
	lockTTL  time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Jobs              jobrun.Store
	Config            config.RiskConfig
	LockTTL           time.Duration
	Logger            *logger.Logger
	Now               func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "risk repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Jobs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "job run store required")
	}
	if params.LockTTL <= 0 {
		params.LockTTL = 2 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		jobs:     params.Jobs,
		cfg:      params.Config,
		lockTTL:  params.LockTTL,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) GetState(ctx context.Context, storeID uuid.UUID) (*models.StoreRiskState, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	state, err := s.repo.FindState(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load risk state")
	}
	if state == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "risk state not found")
	}
	return state, nil
}

func (s *service) ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreRiskState, error) {
	states, err := s.repo.ListStates(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list risk states")
	}
	return states, nil
}

func (s *service) ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.RiskEvent, string, error) {
	if storeID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	events, next, err := s.repo.ListEvents(ctx, storeID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list risk events")
	}
	return events, next, nil
}

func (s *service) Summary(ctx context.Context, window time.Duration) (*Summary, error) {
	since := time.Time{}
	if window > 0 {
		since = s.now().Add(-window)
	}
	counts, err := s.repo.CountByLevel(ctx, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count by level")
	}
	frozen, err := s.repo.CountFrozen(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count frozen")
	}
	reasons, err := s.repo.TopReasons(ctx, since, topReasonLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "top reasons")
	}
	lastRun, err := s.jobs.Status(ctx, JobName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job status")
	}

	byLevel := map[string]int64{}
	for _, c := range counts {
		byLevel[string(c.RiskLevel)] = c.Count
	}
	return &Summary{ByLevel: byLevel, FrozenCount: frozen, TopReasons: reasons, LastRun: lastRun}, nil
}

func validateReason(reason string) error {
	if len(strings.TrimSpace(reason)) < minReasonLen {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason must be at least 5 characters")
	}
	return nil
}

// SetRiskLevel applies an admin level override, appending the audit event in
// the same transaction as the state write.
func (s *service) SetRiskLevel(ctx context.Context, input SetLevelInput) (*models.StoreRiskState, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if !input.Level.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid risk level")
	}
	if err := validateReason(input.Reason); err != nil {
		return nil, err
	}

	return s.mutateState(ctx, input.StoreID, func(state *models.StoreRiskState) (*models.RiskEvent, error) {
		prev := state.RiskLevel
		state.RiskLevel = input.Level
		state.Reason = input.Reason
		state.Note = input.Note
		if input.Level == enums.RiskLevelFrozen {
			state.PayoutsFrozen = true
		}
		if input.ForcePayoutsFrozen != nil {
			// FROZEN keeps payouts frozen no matter what the caller asks.
			state.PayoutsFrozen = *input.ForcePayoutsFrozen || state.RiskLevel == enums.RiskLevelFrozen
		}

		return &models.RiskEvent{
			StoreID:   input.StoreID,
			Type:      enums.RiskEventManualLevelSet,
			Severity:  transitionSeverity(prev, input.Level),
			PrevLevel: prev,
			NextLevel: input.Level,
			Details:   detailsJSON(map[string]any{"reason": input.Reason, "note": input.Note}),
		}, nil
	})
}

// Freeze sets the requested level and halts payouts.
func (s *service) Freeze(ctx context.Context, input FreezeInput) (*models.StoreRiskState, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if !input.Level.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid risk level")
	}
	if err := validateReason(input.Reason); err != nil {
		return nil, err
	}

	return s.mutateState(ctx, input.StoreID, func(state *models.StoreRiskState) (*models.RiskEvent, error) {
		prev := state.RiskLevel
		state.RiskLevel = input.Level
		state.PayoutsFrozen = true
		state.Reason = input.Reason
		state.Note = input.Note

		return &models.RiskEvent{
			StoreID:   input.StoreID,
			Type:      enums.RiskEventManualFreeze,
			Severity:  enums.RiskSeverityCritical,
			PrevLevel: prev,
			NextLevel: input.Level,
			Details:   detailsJSON(map[string]any{"reason": input.Reason, "note": input.Note}),
		}, nil
	})
}

// Unfreeze releases payouts; a FROZEN level drops to HIGH.
func (s *service) Unfreeze(ctx context.Context, input UnfreezeInput) (*models.StoreRiskState, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if err := validateReason(input.Reason); err != nil {
		return nil, err
	}

	return s.mutateState(ctx, input.StoreID, func(state *models.StoreRiskState) (*models.RiskEvent, error) {
		prev := state.RiskLevel
		state.PayoutsFrozen = false
		if state.RiskLevel == enums.RiskLevelFrozen {
			state.RiskLevel = enums.RiskLevelHigh
		}
		state.Reason = input.Reason
		state.Note = input.Note

		return &models.RiskEvent{
			StoreID:   input.StoreID,
			Type:      enums.RiskEventManualUnfreeze,
			Severity:  enums.RiskSeverityWarning,
			PrevLevel: prev,
			NextLevel: state.RiskLevel,
			Details:   detailsJSON(map[string]any{"reason": input.Reason, "note": input.Note}),
		}, nil
	})
}

// SetManualFlag pins or releases the investigation flag. A set flag keeps the
// automatic evaluation at HIGH or worse until cleared.
func (s *service) SetManualFlag(ctx context.Context, storeID uuid.UUID, flag bool, reason string) (*models.StoreRiskState, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if err := validateReason(reason); err != nil {
		return nil, err
	}

	return s.mutateState(ctx, storeID, func(state *models.StoreRiskState) (*models.RiskEvent, error) {
		state.ManualFlag = flag

		eventType := enums.RiskEventManualFlagSet
		severity := enums.RiskSeverityWarning
		if !flag {
			eventType = enums.RiskEventManualFlagClear
			severity = enums.RiskSeverityInfo
		}
		return &models.RiskEvent{
			StoreID:   storeID,
			Type:      eventType,
			Severity:  severity,
			PrevLevel: state.RiskLevel,
			NextLevel: state.RiskLevel,
			Details:   detailsJSON(map[string]any{"reason": reason, "flag": flag}),
		}, nil
	})
}

// RecordSignal increments the named counter and appends an INFO event.
func (s *service) RecordSignal(ctx context.Context, storeID uuid.UUID, kind SignalKind) error {
	if storeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}

	_, err := s.mutateState(ctx, storeID, func(state *models.StoreRiskState) (*models.RiskEvent, error) {
		switch kind {
		case SignalChargeback:
			state.ChargebackCount++
		case SignalDispute:
			state.DisputeCount++
		case SignalSettled:
			state.SettledCount++
		default:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown signal kind")
		}

		return &models.RiskEvent{
			StoreID:   storeID,
			Type:      enums.RiskEventSignalRecorded,
			Severity:  enums.RiskSeverityInfo,
			PrevLevel: state.RiskLevel,
			NextLevel: state.RiskLevel,
			Details:   detailsJSON(map[string]any{"signal": string(kind)}),
		}, nil
	})
	return err
}

// Evaluate runs the automatic rules for one store.
func (s *service) Evaluate(ctx context.Context, storeID uuid.UUID, dryRun bool) (*EvalResult, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}

	state, err := s.repo.FindState(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load risk state")
	}
	if state == nil {
		state = &models.StoreRiskState{StoreID: storeID, RiskLevel: enums.RiskLevelNormal}
	}

	spike, err := s.volumeSpike(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute volume signal")
	}

	signals := Signals{
		ChargebackCount: state.ChargebackCount,
		DisputeCount:    state.DisputeCount,
		SettledCount:    state.SettledCount,
		VolumeSpike:     spike,
		ManualFlag:      state.ManualFlag,
	}
	nextLevel, reason := Evaluate(signals, s.cfg)

	result := &EvalResult{
		StoreID:   storeID,
		PrevLevel: state.RiskLevel,
		NextLevel: nextLevel,
		Changed:   nextLevel != state.RiskLevel,
		Reason:    reason,
		DryRun:    dryRun,
	}
	if dryRun {
		return result, nil
	}

	now := s.now()
	prev := state.RiskLevel
	state.RiskLevel = nextLevel
	state.Reason = reason
	state.LastRiskEvaluated = &now
	if nextLevel == enums.RiskLevelFrozen {
		state.PayoutsFrozen = true
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpsertState(ctx, state); err != nil {
			return err
		}
		if !result.Changed {
			return nil
		}
		return repo.AppendEvent(ctx, &models.RiskEvent{
			ID:        uuid.New(),
			StoreID:   storeID,
			Type:      enums.RiskEventAutoEvaluation,
			Severity:  transitionSeverity(prev, nextLevel),
			PrevLevel: prev,
			NextLevel: nextLevel,
			Details:   detailsJSON(map[string]any{"reason": reason, "signals": signals}),
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist evaluation")
	}
	return result, nil
}

// RunDailyEval evaluates every store under the single-flight job lock.
func (s *service) RunDailyEval(ctx context.Context, dryRun bool) (*BatchReport, error) {
	now := s.now()
	if err := s.jobs.Acquire(ctx, JobName, now, s.lockTTL); err != nil {
		if err == jobrun.ErrJobBusy {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire job lock")
	}

	report := &BatchReport{DryRun: dryRun, StartedAt: now}
	if s.logg != nil {
		ctx = s.logg.WithJobName(ctx, JobName)
		s.logg.Info(ctx, "risk.daily_eval.start")
	}

	pageSize := s.cfg.BatchPageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	var after *uuid.UUID
	for {
		ids, err := s.repo.ListStoreIDs(ctx, after, pageSize)
		if err != nil {
			report.Errors++
			if s.logg != nil {
				s.logg.Error(ctx, "risk.daily_eval.page_failed", err)
			}
			break
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			result, evalErr := s.Evaluate(ctx, id, dryRun)
			if evalErr != nil {
				report.Errors++
				if s.logg != nil {
					s.logg.Error(s.logg.WithStoreID(ctx, id.String()), "risk.daily_eval.store_failed", evalErr)
				}
				continue
			}
			report.Evaluated++
			if result.Changed {
				report.Changed++
				if result.NextLevel == enums.RiskLevelFrozen {
					report.Frozen++
				}
				if result.PrevLevel == enums.RiskLevelFrozen {
					report.Unfrozen++
				}
			}
		}
		last := ids[len(ids)-1]
		after = &last
		if len(ids) < pageSize {
			break
		}
	}

	report.FinishedAt = s.now()
	// A dry run returns its report but never overwrites the last real one.
	var payload json.RawMessage
	if !dryRun {
		payload, _ = json.Marshal(report)
	}
	if err := s.jobs.Release(ctx, JobName, payload); err != nil && s.logg != nil {
		s.logg.Error(ctx, "risk.daily_eval.release_failed", err)
	}
	if s.logg != nil {
		s.logg.Info(ctx, "risk.daily_eval.done")
	}
	return report, nil
}

func (s *service) JobStatus(ctx context.Context) (*models.JobRunState, error) {
	state, err := s.jobs.Status(ctx, JobName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job status")
	}
	return state, nil
}

// volumeSpike compares the last 24h settled volume to the trailing 30 day
// daily mean. Zero history means no spike signal.
func (s *service) volumeSpike(ctx context.Context, storeID uuid.UUID) (float64, error) {
	now := s.now()
	dayAgo := now.Add(-24 * time.Hour)
	windowStart := dayAgo.Add(-30 * 24 * time.Hour)

	recent, err := s.repo.SettledVolume(ctx, storeID, dayAgo, now)
	if err != nil {
		return 0, err
	}
	trailing, err := s.repo.SettledVolume(ctx, storeID, windowStart, dayAgo)
	if err != nil {
		return 0, err
	}
	if trailing.IsZero() || recent.IsZero() {
		return 0, nil
	}
	mean, _ := trailing.Div(decimal.NewFromInt(30)).Float64()
	if mean <= 0 {
		return 0, nil
	}
	recentF, _ := recent.Float64()
	return recentF / mean, nil
}

// mutateState loads (or initializes) the state under a row lock, applies fn,
// and persists the state plus its audit event, all in one transaction. The
// read stays inside the transaction; a read-modify-write across two webhook
// deliveries would otherwise drop one counter increment.
func (s *service) mutateState(ctx context.Context, storeID uuid.UUID, fn func(*models.StoreRiskState) (*models.RiskEvent, error)) (*models.StoreRiskState, error) {
	var state *models.StoreRiskState
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		state, err = repo.FindStateForUpdate(ctx, storeID)
		if err != nil {
			return err
		}
		if state == nil {
			state = &models.StoreRiskState{StoreID: storeID, RiskLevel: enums.RiskLevelNormal}
		}

		event, err := fn(state)
		if err != nil {
			return err
		}
		if err := repo.UpsertState(ctx, state); err != nil {
			return err
		}
		if event == nil {
			return nil
		}
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		return repo.AppendEvent(ctx, event)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist risk state")
	}
	return state, nil
}

func transitionSeverity(prev, next enums.RiskLevel) enums.RiskSeverity {
	switch {
	case next == enums.RiskLevelFrozen:
		return enums.RiskSeverityCritical
	case next.Rank() > prev.Rank():
		return enums.RiskSeverityWarning
	default:
		return enums.RiskSeverityInfo
	}
}

func detailsJSON(fields map[string]any) json.RawMessage {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}
