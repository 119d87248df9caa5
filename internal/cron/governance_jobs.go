package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/internal/trust"
	"github.com/baymarket/baymarket-backend/pkg/logger"
)

type riskBatchRunner interface {
	RunDailyEval(ctx context.Context, dryRun bool) (*risk.BatchReport, error)
}

type trustBatchRunner interface {
	RunDailyRecompute(ctx context.Context, dryRun bool) (*trust.BatchReport, error)
}

// RiskEvalJob runs the daily automatic risk evaluation.
type RiskEvalJob struct {
	runner riskBatchRunner
	logg   *logger.Logger
}

func NewRiskEvalJob(runner riskBatchRunner, logg *logger.Logger) (*RiskEvalJob, error) {
	if runner == nil {
		return nil, fmt.Errorf("risk batch runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &RiskEvalJob{runner: runner, logg: logg}, nil
}

func (j *RiskEvalJob) Name() string { return risk.JobName }

func (j *RiskEvalJob) Run(ctx context.Context) error {
	report, err := j.runner.RunDailyEval(ctx, false)
	if err != nil {
		// Another runner holds the job lock; this cycle is simply not ours.
		if errors.Is(err, jobrun.ErrJobBusy) {
			j.logg.Info(ctx, "risk evaluation already running elsewhere; skipping")
			return nil
		}
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"evaluated": report.Evaluated,
		"changed":   report.Changed,
		"frozen":    report.Frozen,
		"unfrozen":  report.Unfrozen,
		"errors":    report.Errors,
	}), "risk evaluation cycle finished")
	return nil
}

// TrustRecomputeJob runs the daily trust score recompute.
type TrustRecomputeJob struct {
	runner trustBatchRunner
	logg   *logger.Logger
}

func NewTrustRecomputeJob(runner trustBatchRunner, logg *logger.Logger) (*TrustRecomputeJob, error) {
	if runner == nil {
		return nil, fmt.Errorf("trust batch runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &TrustRecomputeJob{runner: runner, logg: logg}, nil
}

func (j *TrustRecomputeJob) Name() string { return trust.JobName }

func (j *TrustRecomputeJob) Run(ctx context.Context) error {
	report, err := j.runner.RunDailyRecompute(ctx, false)
	if err != nil {
		if errors.Is(err, jobrun.ErrJobBusy) {
			j.logg.Info(ctx, "trust recompute already running elsewhere; skipping")
			return nil
		}
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"evaluated": report.Evaluated,
		"changed":   report.Changed,
		"errors":    report.Errors,
	}), "trust recompute cycle finished")
	return nil
}
