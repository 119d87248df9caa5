package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/baymarket/baymarket-backend/api/responses"
	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/internal/trust"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

type trustService interface {
	GetState(ctx context.Context, storeID uuid.UUID) (*models.StoreTrustState, error)
	ListStates(ctx context.Context, filter trust.StateFilter, params pagination.Params) ([]models.StoreTrustState, error)
	ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.TrustEvent, string, error)
	Summary(ctx context.Context) (*trust.Summary, error)
	Recompute(ctx context.Context, storeID uuid.UUID, dryRun bool) (*trust.RecomputeResult, error)
	RunDailyRecompute(ctx context.Context, dryRun bool) (*trust.BatchReport, error)
	JobStatus(ctx context.Context) (*models.JobRunState, error)
}

// AdminTrustStores lists per-store trust states with an optional tier filter.
func AdminTrustStores(svc trustService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := trust.StateFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("tier")); raw != "" {
			tier, err := enums.ParseTrustTier(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier filter"))
				return
			}
			filter.Tier = &tier
		}

		states, err := svc.ListStates(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"stores": states})
	}
}

// AdminStoreTrustState returns one store's trust state.
func AdminStoreTrustState(svc trustService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := svc.GetState(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// AdminStoreTrustEvents pages through a store's tier-change history.
func AdminStoreTrustEvents(svc trustService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, next, err := svc.ListEvents(r.Context(), storeID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"events": events, "next_cursor": next})
	}
}

// AdminTrustSummary aggregates the trust dashboard counters.
func AdminTrustSummary(svc trustService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Summary(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// AdminRecomputeStoreTrust rebuilds one store's trust state on demand.
func AdminRecomputeStoreTrust(svc trustService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Recompute(r.Context(), storeID, dryRunParam(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminRunTrustDailyRecompute kicks the daily recompute batch off-schedule.
func AdminRunTrustDailyRecompute(svc trustService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.RunDailyRecompute(r.Context(), dryRunParam(r))
		if err != nil {
			if errors.Is(err, jobrun.ErrJobBusy) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeLockHeld, "daily recompute already running"))
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminTrustJobStatus reports the daily recompute lock and last report.
func AdminTrustJobStatus(svc trustService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.JobStatus(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if status == nil {
			responses.WriteSuccess(w, map[string]any{"job": nil})
			return
		}
		responses.WriteSuccess(w, status)
	}
}
