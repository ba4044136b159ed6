// Package handlers exposes plan scoring over HTTP.
package handlers

import (
	"errors"
	"net/http"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/httputil"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/internal/modules/planning"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles plan scoring HTTP requests
type Handler struct {
	scorer *planning.Scorer
	log    zerolog.Logger
}

// NewHandler creates a new planning handler
func NewHandler(scorer *planning.Scorer, log zerolog.Logger) *Handler {
	return &Handler{
		scorer: scorer,
		log:    log.With().Str("handler", "planning").Logger(),
	}
}

// RegisterRoutes registers the plan routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/plans", func(r chi.Router) {
		r.Post("/evaluate", h.HandleEvaluate)
		r.Post("/pick-best", h.HandlePickBest)
		r.Post("/annotate", h.HandleAnnotate)
	})
}

// EvaluateResponse is the score of one plan.
type EvaluateResponse struct {
	planning.Evaluation
	MalformedTargets []domain.MalformedTarget `json:"malformed_targets,omitempty" msgpack:"malformed_targets,omitempty"`
}

// PickBestRequest is the body of POST /api/plans/pick-best.
type PickBestRequest struct {
	Plans []domain.RawPlan `json:"plans"`
}

// PickBestResponse names the winning plan and carries every score.
type PickBestResponse struct {
	BestIndex        int                              `json:"best_index" msgpack:"best_index"`
	Evaluations      []planning.Evaluation            `json:"evaluations" msgpack:"evaluations"`
	MalformedTargets map[int][]domain.MalformedTarget `json:"malformed_targets,omitempty" msgpack:"malformed_targets,omitempty"`
}

// AnnotateResponse is the plan with expected impacts filled in.
type AnnotateResponse struct {
	Plan             domain.Plan              `json:"plan" msgpack:"plan"`
	Model            string                   `json:"model" msgpack:"model"`
	MalformedTargets []domain.MalformedTarget `json:"malformed_targets,omitempty" msgpack:"malformed_targets,omitempty"`
}

// HandleEvaluate handles POST /api/plans/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawPlan
	if err := httputil.DecodeJSON(r, &raw); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		httputil.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil, h.log)
		return
	}
	plan, malformed := domain.DecodePlan(raw)
	h.logMalformed(plan.ID, malformed)

	eval, err := h.scorer.EvaluatePlan(r.Context(), plan)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, EvaluateResponse{Evaluation: *eval, MalformedTargets: malformed}, h.log)
}

// HandlePickBest handles POST /api/plans/pick-best
func (h *Handler) HandlePickBest(w http.ResponseWriter, r *http.Request) {
	var req PickBestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		httputil.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil, h.log)
		return
	}
	plans, malformed := domain.DecodePlans(req.Plans)
	for i, bad := range malformed {
		h.logMalformed(plans[i].ID, bad)
	}

	best, evals, err := h.scorer.PickBest(r.Context(), plans)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, PickBestResponse{
		BestIndex:        best,
		Evaluations:      evals,
		MalformedTargets: malformed,
	}, h.log)
}

// HandleAnnotate handles POST /api/plans/annotate?model=loglog|linear
func (h *Handler) HandleAnnotate(w http.ResponseWriter, r *http.Request) {
	model, err := planning.ParseResponseModel(r.URL.Query().Get("model"))
	if err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error(), nil, h.log)
		return
	}
	var raw domain.RawPlan
	if err := httputil.DecodeJSON(r, &raw); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		httputil.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil, h.log)
		return
	}
	plan, malformed := domain.DecodePlan(raw)
	h.logMalformed(plan.ID, malformed)

	if err := h.scorer.AnnotateExpectedImpacts(r.Context(), &plan, model); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, AnnotateResponse{Plan: plan, Model: model.Name(), MalformedTargets: malformed}, h.log)
}

func (h *Handler) logMalformed(planID string, malformed []domain.MalformedTarget) {
	if len(malformed) == 0 {
		return
	}
	h.log.Warn().Str("plan_id", planID).Int("count", len(malformed)).Msg("Dropped malformed target ids")
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrEmptyCatalog) {
		httputil.WriteError(w, r, http.StatusServiceUnavailable, "Catalog is empty", nil, h.log)
		return
	}
	h.log.Error().Err(err).Msg("Plan scoring failed")
	httputil.WriteError(w, r, http.StatusInternalServerError, "Plan scoring failed", nil, h.log)
}
