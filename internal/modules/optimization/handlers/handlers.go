// Package handlers exposes the price optimizer over HTTP.
package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/aristath/pricepack/internal/httputil"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DefaultSpendBudget applies when the request names no budget.
const DefaultSpendBudget = 1e6

// Handler handles optimizer HTTP requests
type Handler struct {
	optimizer optimization.Optimizer
	log       zerolog.Logger
}

// NewHandler creates a new optimizer handler
func NewHandler(optimizer optimization.Optimizer, log zerolog.Logger) *Handler {
	return &Handler{
		optimizer: optimizer,
		log:       log.With().Str("handler", "optimization").Logger(),
	}
}

// RegisterRoutes registers the optimizer routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimize", func(r chi.Router) {
		r.Get("/", h.HandleGetStatus)
		r.Post("/run", h.HandleRun)
	})
}

// HandleGetStatus handles GET /api/optimize
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, r, http.StatusOK, map[string]interface{}{
		"solver": h.optimizer.Name(),
		"rounds": map[string]float64{"1": optimization.Round1Bound, "2": optimization.Round2Bound},
	}, h.log)
}

// HandleRun handles POST /api/optimize/run?round=1&budget=...
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	round := 1
	if v := r.URL.Query().Get("round"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteError(w, r, http.StatusBadRequest, "round must be an integer", nil, h.log)
			return
		}
		round = n
	}
	budget := DefaultSpendBudget
	if v := r.URL.Query().Get("budget"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			httputil.WriteError(w, r, http.StatusBadRequest, "budget must be a finite number", nil, h.log)
			return
		}
		budget = f
	}

	res, err := h.optimizer.Optimize(r.Context(), round, budget)
	switch {
	case err == nil:
		httputil.WriteData(w, r, http.StatusOK, res, h.log)
	case errors.Is(err, optimization.ErrInvalidRound), errors.Is(err, optimization.ErrInvalidBudget):
		httputil.WriteError(w, r, http.StatusBadRequest, err.Error(), nil, h.log)
	case errors.Is(err, catalog.ErrEmptyCatalog):
		httputil.WriteError(w, r, http.StatusServiceUnavailable, "Catalog is empty", nil, h.log)
	default:
		h.log.Error().Err(err).Int("round", round).Msg("Optimization failed")
		httputil.WriteError(w, r, http.StatusInternalServerError, "Optimization failed", nil, h.log)
	}
}
