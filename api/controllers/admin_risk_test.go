package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

type stubRiskService struct {
	setLevelFn  func(ctx context.Context, input risk.SetLevelInput) (*models.StoreRiskState, error)
	freezeFn    func(ctx context.Context, input risk.FreezeInput) (*models.StoreRiskState, error)
	dailyEvalFn func(ctx context.Context, dryRun bool) (*risk.BatchReport, error)
	jobStatusFn func(ctx context.Context) (*models.JobRunState, error)
}

func (s stubRiskService) GetState(context.Context, uuid.UUID) (*models.StoreRiskState, error) {
	return &models.StoreRiskState{}, nil
}

func (s stubRiskService) ListStates(context.Context, risk.StateFilter, pagination.Params) ([]models.StoreRiskState, error) {
	return nil, nil
}

func (s stubRiskService) ListEvents(context.Context, uuid.UUID, pagination.Params) ([]models.RiskEvent, string, error) {
	return nil, "", nil
}

func (s stubRiskService) Summary(context.Context, time.Duration) (*risk.Summary, error) {
	return &risk.Summary{}, nil
}

func (s stubRiskService) SetRiskLevel(ctx context.Context, input risk.SetLevelInput) (*models.StoreRiskState, error) {
	if s.setLevelFn != nil {
		return s.setLevelFn(ctx, input)
	}
	return &models.StoreRiskState{StoreID: input.StoreID, RiskLevel: input.Level}, nil
}

func (s stubRiskService) Freeze(ctx context.Context, input risk.FreezeInput) (*models.StoreRiskState, error) {
	if s.freezeFn != nil {
		return s.freezeFn(ctx, input)
	}
	return &models.StoreRiskState{StoreID: input.StoreID, RiskLevel: input.Level, PayoutsFrozen: true}, nil
}

func (s stubRiskService) Unfreeze(ctx context.Context, input risk.UnfreezeInput) (*models.StoreRiskState, error) {
	return &models.StoreRiskState{StoreID: input.StoreID, RiskLevel: enums.RiskLevelHigh}, nil
}

func (s stubRiskService) SetManualFlag(ctx context.Context, storeID uuid.UUID, flag bool, _ string) (*models.StoreRiskState, error) {
	return &models.StoreRiskState{StoreID: storeID, ManualFlag: flag}, nil
}

func (s stubRiskService) Evaluate(ctx context.Context, storeID uuid.UUID, dryRun bool) (*risk.EvalResult, error) {
	return &risk.EvalResult{StoreID: storeID, DryRun: dryRun}, nil
}

func (s stubRiskService) RunDailyEval(ctx context.Context, dryRun bool) (*risk.BatchReport, error) {
	if s.dailyEvalFn != nil {
		return s.dailyEvalFn(ctx, dryRun)
	}
	return &risk.BatchReport{}, nil
}

func (s stubRiskService) JobStatus(ctx context.Context) (*models.JobRunState, error) {
	if s.jobStatusFn != nil {
		return s.jobStatusFn(ctx)
	}
	return nil, nil
}

func withStoreID(req *http.Request, storeID uuid.UUID) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("storeId", storeID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAdminFreezeStore(t *testing.T) {
	storeID := uuid.New()
	var got risk.FreezeInput
	svc := stubRiskService{
		freezeFn: func(_ context.Context, input risk.FreezeInput) (*models.StoreRiskState, error) {
			got = input
			return &models.StoreRiskState{StoreID: input.StoreID, RiskLevel: input.Level, PayoutsFrozen: true}, nil
		},
	}

	handler := AdminFreezeStore(svc, nil)
	body := strings.NewReader(`{"reason":"chargeback spike under review"}`)
	req := withStoreID(httptest.NewRequest(http.MethodPost, "/", body), storeID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.StoreID != storeID {
		t.Fatalf("unexpected store id %s", got.StoreID)
	}
	if got.Level != enums.RiskLevelFrozen {
		t.Fatalf("freeze must default to FROZEN, got %s", got.Level)
	}

	var envelope struct {
		Data models.StoreRiskState `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.PayoutsFrozen {
		t.Fatalf("expected frozen payouts in response %v", envelope.Data)
	}
}

func TestAdminSetStoreRiskLevelRejectsUnknownLevel(t *testing.T) {
	handler := AdminSetStoreRiskLevel(stubRiskService{}, nil)
	body := strings.NewReader(`{"level":"EXTREME","reason":"manual review outcome"}`)
	req := withStoreID(httptest.NewRequest(http.MethodPatch, "/", body), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminSetStoreRiskLevelRejectsShortReason(t *testing.T) {
	handler := AdminSetStoreRiskLevel(stubRiskService{}, nil)
	body := strings.NewReader(`{"level":"HIGH","reason":"ok"}`)
	req := withStoreID(httptest.NewRequest(http.MethodPatch, "/", body), uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRunRiskDailyEvalBusyIsConflict(t *testing.T) {
	svc := stubRiskService{
		dailyEvalFn: func(context.Context, bool) (*risk.BatchReport, error) {
			return nil, jobrun.ErrJobBusy
		},
	}
	handler := AdminRunRiskDailyEval(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAdminRiskJobStatusUnknownJob(t *testing.T) {
	handler := AdminRiskJobStatus(stubRiskService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if job, ok := envelope.Data["job"]; !ok || job != nil {
		t.Fatalf("expected explicit nil job, got %v", envelope.Data)
	}
}
