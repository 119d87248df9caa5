package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/internal/trust"
	"github.com/baymarket/baymarket-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	registry := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	err = service.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected the failing job's error to surface from the cycle")
	}
	for _, job := range registry.Jobs() {
		if job.(*testJob).runs != 1 {
			t.Fatalf("expected job %s to run once, ran %d", job.Name(), job.(*testJob).runs)
		}
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	job := &testJob{name: "job"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("locked cycle must not run jobs, ran %d", job.runs)
	}
}

type fakeRiskRunner struct {
	report *risk.BatchReport
	err    error
	calls  int
}

func (f *fakeRiskRunner) RunDailyEval(ctx context.Context, dryRun bool) (*risk.BatchReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeTrustRunner struct {
	report *trust.BatchReport
	err    error
	calls  int
}

func (f *fakeTrustRunner) RunDailyRecompute(ctx context.Context, dryRun bool) (*trust.BatchReport, error) {
	f.calls++
	return f.report, f.err
}

func TestRiskEvalJobBusyLockIsSkipNotFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	runner := &fakeRiskRunner{err: jobrun.ErrJobBusy}
	job, err := NewRiskEvalJob(runner, logg)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("busy lock should not be reported as job failure: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("expected runner call, got %d", runner.calls)
	}
}

func TestRiskEvalJobPropagatesRealErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	runner := &fakeRiskRunner{err: errors.New("db down")}
	job, err := NewRiskEvalJob(runner, logg)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestTrustRecomputeJobReportsCycle(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	runner := &fakeTrustRunner{report: &trust.BatchReport{Evaluated: 3, Changed: 1}}
	job, err := NewTrustRecomputeJob(runner, logg)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Name() != trust.JobName {
		t.Fatalf("unexpected job name %s", job.Name())
	}
}
