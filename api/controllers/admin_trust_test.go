package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/baymarket/baymarket-backend/internal/trust"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

type stubTrustService struct {
	listFn      func(ctx context.Context, filter trust.StateFilter, params pagination.Params) ([]models.StoreTrustState, error)
	recomputeFn func(ctx context.Context, storeID uuid.UUID, dryRun bool) (*trust.RecomputeResult, error)
}

func (s stubTrustService) GetState(context.Context, uuid.UUID) (*models.StoreTrustState, error) {
	return &models.StoreTrustState{}, nil
}

func (s stubTrustService) ListStates(ctx context.Context, filter trust.StateFilter, params pagination.Params) ([]models.StoreTrustState, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter, params)
	}
	return nil, nil
}

func (s stubTrustService) ListEvents(context.Context, uuid.UUID, pagination.Params) ([]models.TrustEvent, string, error) {
	return nil, "", nil
}

func (s stubTrustService) Summary(context.Context) (*trust.Summary, error) {
	return &trust.Summary{}, nil
}

func (s stubTrustService) Recompute(ctx context.Context, storeID uuid.UUID, dryRun bool) (*trust.RecomputeResult, error) {
	if s.recomputeFn != nil {
		return s.recomputeFn(ctx, storeID, dryRun)
	}
	return &trust.RecomputeResult{StoreID: storeID, DryRun: dryRun}, nil
}

func (s stubTrustService) RunDailyRecompute(context.Context, bool) (*trust.BatchReport, error) {
	return &trust.BatchReport{}, nil
}

func (s stubTrustService) JobStatus(context.Context) (*models.JobRunState, error) {
	return nil, nil
}

func TestAdminTrustStoresTierFilter(t *testing.T) {
	var gotFilter trust.StateFilter
	svc := stubTrustService{
		listFn: func(_ context.Context, filter trust.StateFilter, _ pagination.Params) ([]models.StoreTrustState, error) {
			gotFilter = filter
			return []models.StoreTrustState{{StoreID: uuid.New(), TrustTier: enums.TrustTierElite}}, nil
		},
	}

	handler := AdminTrustStores(svc, nil)
	req := httptest.NewRequest(http.MethodGet, "/?tier=ELITE", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotFilter.Tier == nil || *gotFilter.Tier != enums.TrustTierElite {
		t.Fatalf("tier filter not forwarded, got %v", gotFilter.Tier)
	}
}

func TestAdminTrustStoresRejectsUnknownTier(t *testing.T) {
	handler := AdminTrustStores(stubTrustService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/?tier=PLATINUM", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRecomputeStoreTrustDryRun(t *testing.T) {
	storeID := uuid.New()
	handler := AdminRecomputeStoreTrust(stubTrustService{}, nil)
	req := withStoreID(httptest.NewRequest(http.MethodPost, "/?dryRun=true", nil), storeID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data trust.RecomputeResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.StoreID != storeID || !envelope.Data.DryRun {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
}
