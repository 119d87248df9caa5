package trust

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/pkg/config"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

// JobName identifies the daily recompute batch in job_run_state.
const JobName = "trust-daily-recompute"

// RecomputeResult describes one store recompute.
type RecomputeResult struct {
	StoreID     uuid.UUID       `json:"store_id"`
	PrevTier    enums.TrustTier `json:"prev_tier"`
	NextTier    enums.TrustTier `json:"next_tier"`
	PrevScore   string          `json:"prev_score"`
	NextScore   string          `json:"next_score"`
	TierChanged bool            `json:"tier_changed"`
	Reason      string          `json:"reason"`
	DryRun      bool            `json:"dry_run"`
}

// BatchReport summarizes a daily recompute run.
type BatchReport struct {
	Evaluated  int       `json:"evaluated"`
	Changed    int       `json:"changed"`
	Errors     int       `json:"errors"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Summary is the admin dashboard aggregation.
type Summary struct {
	ByTier  map[string]int64    `json:"by_tier"`
	LastRun *models.JobRunState `json:"last_run,omitempty"`
}

// Service is the trust reputation engine.
type Service interface {
	GetState(ctx context.Context, storeID uuid.UUID) (*models.StoreTrustState, error)
	ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreTrustState, error)
	ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.TrustEvent, string, error)
	Summary(ctx context.Context) (*Summary, error)
	Recompute(ctx context.Context, storeID uuid.UUID, dryRun bool) (*RecomputeResult, error)
	RunDailyRecompute(ctx context.Context, dryRun bool) (*BatchReport, error)
	JobStatus(ctx context.Context) (*models.JobRunState, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	txRunner txRunner
	jobs     jobrun.Store
	cfg      config.TrustConfig
	lockTTL  time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Jobs              jobrun.Store
	Config            config.TrustConfig
	LockTTL           time.Duration
	Logger            *logger.Logger
	Now               func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "trust repo required")
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

func (s *service) GetState(ctx context.Context, storeID uuid.UUID) (*models.StoreTrustState, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	state, err := s.repo.FindState(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trust state")
	}
	if state == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "trust state not found")
	}
	return state, nil
}

func (s *service) ListStates(ctx context.Context, filter StateFilter, params pagination.Params) ([]models.StoreTrustState, error) {
	states, err := s.repo.ListStates(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list trust states")
	}
	return states, nil
}

func (s *service) ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.TrustEvent, string, error) {
	if storeID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	events, next, err := s.repo.ListEvents(ctx, storeID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list trust events")
	}
	return events, next, nil
}

func (s *service) Summary(ctx context.Context) (*Summary, error) {
	counts, err := s.repo.CountByTier(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count by tier")
	}
	lastRun, err := s.jobs.Status(ctx, JobName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job status")
	}

	byTier := map[string]int64{}
	for _, c := range counts {
		byTier[string(c.TrustTier)] = c.Count
	}
	return &Summary{ByTier: byTier, LastRun: lastRun}, nil
}

// Recompute rebuilds one store's score, tier and derived factors from the
// settlement and dispute signals.
func (s *service) Recompute(ctx context.Context, storeID uuid.UUID, dryRun bool) (*RecomputeResult, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}

	now := s.now()
	inputs, err := s.loadInputs(ctx, storeID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trust signals")
	}

	state, err := s.repo.FindState(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load trust state")
	}
	if state == nil {
		state = &models.StoreTrustState{
			StoreID:   storeID,
			TrustTier: TierFor(neutralScore),
		}
	}

	score, reason := Score(inputs, s.cfg, now)
	tier := TierFor(score)

	result := &RecomputeResult{
		StoreID:     storeID,
		PrevTier:    state.TrustTier,
		NextTier:    tier,
		PrevScore:   state.TrustScore.String(),
		NextScore:   score.String(),
		TierChanged: tier != state.TrustTier,
		Reason:      reason,
		DryRun:      dryRun,
	}
	if dryRun {
		return result, nil
	}

	prevTier := state.TrustTier
	prevScore := state.TrustScore
	state.TrustScore = score
	state.TrustTier = tier
	state.ListingBoostFactor = BoostFor(tier)
	state.PayoutDelayHours = DelayHoursFor(tier)
	state.TrustReasonSummary = reason
	state.LastRecomputed = &now

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpsertState(ctx, state); err != nil {
			return err
		}
		if !result.TierChanged {
			return nil
		}
		return repo.AppendEvent(ctx, &models.TrustEvent{
			ID:        uuid.New(),
			StoreID:   storeID,
			PrevTier:  prevTier,
			NextTier:  tier,
			PrevScore: prevScore,
			NextScore: score,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist trust state")
	}
	return result, nil
}

// RunDailyRecompute rebuilds every store under the single-flight job lock.
func (s *service) RunDailyRecompute(ctx context.Context, dryRun bool) (*BatchReport, error) {
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
		s.logg.Info(ctx, "trust.daily_recompute.start")
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
				s.logg.Error(ctx, "trust.daily_recompute.page_failed", err)
			}
			break
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			result, recomputeErr := s.Recompute(ctx, id, dryRun)
			if recomputeErr != nil {
				report.Errors++
				if s.logg != nil {
					s.logg.Error(s.logg.WithStoreID(ctx, id.String()), "trust.daily_recompute.store_failed", recomputeErr)
				}
				continue
			}
			report.Evaluated++
			if result.TierChanged {
				report.Changed++
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
		s.logg.Error(ctx, "trust.daily_recompute.release_failed", err)
	}
	if s.logg != nil {
		s.logg.Info(ctx, "trust.daily_recompute.done")
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

func (s *service) loadInputs(ctx context.Context, storeID uuid.UUID, now time.Time) (Inputs, error) {
	volume, err := s.repo.SettledVolume(ctx, storeID, now.Add(-90*24*time.Hour), now)
	if err != nil {
		return Inputs{}, err
	}
	settled, disputes, err := s.repo.RiskCounters(ctx, storeID)
	if err != nil {
		return Inputs{}, err
	}
	firstSettled, err := s.repo.FirstSettledAt(ctx, storeID)
	if err != nil {
		return Inputs{}, err
	}
	return Inputs{
		SettledVolume:  volume,
		SettledCount:   settled,
		DisputeCount:   disputes,
		FirstSettledAt: firstSettled,
	}, nil
}
