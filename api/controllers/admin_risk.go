package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baymarket/baymarket-backend/api/responses"
	"github.com/baymarket/baymarket-backend/api/validators"
	"github.com/baymarket/baymarket-backend/internal/jobrun"
	"github.com/baymarket/baymarket-backend/internal/risk"
	"github.com/baymarket/baymarket-backend/pkg/db/models"
	"github.com/baymarket/baymarket-backend/pkg/enums"
	pkgerrors "github.com/baymarket/baymarket-backend/pkg/errors"
	"github.com/baymarket/baymarket-backend/pkg/logger"
	"github.com/baymarket/baymarket-backend/pkg/pagination"
)

type riskService interface {
	GetState(ctx context.Context, storeID uuid.UUID) (*models.StoreRiskState, error)
	ListStates(ctx context.Context, filter risk.StateFilter, params pagination.Params) ([]models.StoreRiskState, error)
	ListEvents(ctx context.Context, storeID uuid.UUID, params pagination.Params) ([]models.RiskEvent, string, error)
	Summary(ctx context.Context, window time.Duration) (*risk.Summary, error)
	SetRiskLevel(ctx context.Context, input risk.SetLevelInput) (*models.StoreRiskState, error)
	Freeze(ctx context.Context, input risk.FreezeInput) (*models.StoreRiskState, error)
	Unfreeze(ctx context.Context, input risk.UnfreezeInput) (*models.StoreRiskState, error)
	SetManualFlag(ctx context.Context, storeID uuid.UUID, flag bool, reason string) (*models.StoreRiskState, error)
	Evaluate(ctx context.Context, storeID uuid.UUID, dryRun bool) (*risk.EvalResult, error)
	RunDailyEval(ctx context.Context, dryRun bool) (*risk.BatchReport, error)
	JobStatus(ctx context.Context) (*models.JobRunState, error)
}

func storeIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "storeId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	storeID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id")
	}
	return storeID, nil
}

func dryRunParam(r *http.Request) bool {
	raw := strings.TrimSpace(r.URL.Query().Get("dryRun"))
	dryRun, err := strconv.ParseBool(raw)
	return err == nil && dryRun
}

func listParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

// AdminRiskStores lists per-store risk states with optional level and frozen
// filters.
func AdminRiskStores(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := risk.StateFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("level")); raw != "" {
			level, err := enums.ParseRiskLevel(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid level filter"))
				return
			}
			filter.Level = &level
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("frozen")); raw != "" {
			frozen, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid frozen filter"))
				return
			}
			filter.Frozen = &frozen
		}

		states, err := svc.ListStates(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"stores": states})
	}
}

// AdminStoreRiskState returns one store's risk state.
func AdminStoreRiskState(svc riskService, logg *logger.Logger) http.HandlerFunc {
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

// AdminStoreRiskEvents pages through a store's risk audit trail.
func AdminStoreRiskEvents(svc riskService, logg *logger.Logger) http.HandlerFunc {
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

// AdminRiskSummary aggregates the risk dashboard counters.
func AdminRiskSummary(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := time.Duration(0)
		if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid window"))
				return
			}
			window = parsed
		}

		summary, err := svc.Summary(r.Context(), window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

type setRiskLevelRequest struct {
	Level         string  `json:"level" validate:"required"`
	Reason        string  `json:"reason" validate:"required,min=5"`
	Note          *string `json:"note,omitempty"`
	PayoutsFrozen *bool   `json:"payouts_frozen,omitempty"`
}

// AdminSetStoreRiskLevel applies a manual level override.
func AdminSetStoreRiskLevel(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req setRiskLevelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		level, err := enums.ParseRiskLevel(req.Level)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid level"))
			return
		}

		state, err := svc.SetRiskLevel(r.Context(), risk.SetLevelInput{
			StoreID:            storeID,
			Level:              level,
			Reason:             req.Reason,
			Note:               req.Note,
			ForcePayoutsFrozen: req.PayoutsFrozen,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

type freezeRequest struct {
	Level  string  `json:"level,omitempty"`
	Reason string  `json:"reason" validate:"required,min=5"`
	Note   *string `json:"note,omitempty"`
}

// AdminFreezeStore halts the store's payouts.
func AdminFreezeStore(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req freezeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		level := enums.RiskLevelFrozen
		if req.Level != "" {
			parsed, err := enums.ParseRiskLevel(req.Level)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid level"))
				return
			}
			level = parsed
		}

		state, err := svc.Freeze(r.Context(), risk.FreezeInput{
			StoreID: storeID,
			Level:   level,
			Reason:  req.Reason,
			Note:    req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

type unfreezeRequest struct {
	Reason string  `json:"reason" validate:"required,min=5"`
	Note   *string `json:"note,omitempty"`
}

// AdminUnfreezeStore releases the store's payouts.
func AdminUnfreezeStore(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req unfreezeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := svc.Unfreeze(r.Context(), risk.UnfreezeInput{
			StoreID: storeID,
			Reason:  req.Reason,
			Note:    req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

type riskFlagRequest struct {
	Flag   bool   `json:"flag"`
	Reason string `json:"reason" validate:"required,min=5"`
}

// AdminSetStoreRiskFlag pins or clears the manual investigation flag.
func AdminSetStoreRiskFlag(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req riskFlagRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := svc.SetManualFlag(r.Context(), storeID, req.Flag, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, state)
	}
}

// AdminEvaluateStoreRisk runs the automatic rules for one store on demand.
func AdminEvaluateStoreRisk(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Evaluate(r.Context(), storeID, dryRunParam(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminRunRiskDailyEval kicks the daily evaluation batch off-schedule.
func AdminRunRiskDailyEval(svc riskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.RunDailyEval(r.Context(), dryRunParam(r))
		if err != nil {
			if errors.Is(err, jobrun.ErrJobBusy) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeLockHeld, "daily evaluation already running"))
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminRiskJobStatus reports the daily evaluation lock and last report.
func AdminRiskJobStatus(svc riskService, logg *logger.Logger) http.HandlerFunc {
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
