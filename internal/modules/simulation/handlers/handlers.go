// Package handlers exposes the simulators over HTTP.
package handlers

import (
	"errors"
	"net/http"
	"slices"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/httputil"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/aristath/pricepack/internal/modules/simulation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles simulation HTTP requests
type Handler struct {
	prices  *simulation.PriceSimulator
	delists *simulation.DelistReallocator
	log     zerolog.Logger
}

// NewHandler creates a new simulation handler
func NewHandler(prices *simulation.PriceSimulator, delists *simulation.DelistReallocator, log zerolog.Logger) *Handler {
	return &Handler{
		prices:  prices,
		delists: delists,
		log:     log.With().Str("handler", "simulation").Logger(),
	}
}

// RegisterRoutes registers the simulation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/simulate", func(r chi.Router) {
		r.Post("/price", h.HandleSimulatePrice)
		r.Post("/delist", h.HandleSimulateDelist)
	})
}

// PriceChangeRequest is the body of POST /api/simulate/price. Keys of
// Changes are SKU ids.
type PriceChangeRequest struct {
	Changes map[string]float64 `json:"changes"`
	Weeks   []int              `json:"weeks"`
	Outlets []domain.OutletID  `json:"outlets"`
}

// PriceChangeResponse adds the ids that could not be parsed.
type PriceChangeResponse struct {
	*simulation.PriceResult
	MalformedIDs []string `json:"malformed_ids,omitempty" msgpack:"malformed_ids,omitempty"`
}

// DelistRequestBody is the body of POST /api/simulate/delist.
type DelistRequestBody struct {
	IDs   []domain.RawID `json:"ids"`
	Weeks []int          `json:"weeks"`
}

// DelistResponse carries the surviving rows and their weekly totals.
type DelistResponse struct {
	*simulation.DelistResult
	Weekly       []simulation.WeeklyAggregate `json:"agg" msgpack:"agg"`
	MalformedIDs []string                     `json:"malformed_ids,omitempty" msgpack:"malformed_ids,omitempty"`
}

// HandleSimulatePrice handles POST /api/simulate/price
func (h *Handler) HandleSimulatePrice(w http.ResponseWriter, r *http.Request) {
	var body PriceChangeRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		httputil.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil, h.log)
		return
	}

	req := simulation.PriceRequest{
		Changes: make(map[domain.SKUID]float64, len(body.Changes)),
		Weeks:   body.Weeks,
		Outlets: body.Outlets,
	}
	var malformed []string
	for raw, pct := range body.Changes {
		id, err := domain.ParseSKUID(raw)
		if err != nil {
			malformed = append(malformed, raw)
			continue
		}
		req.Changes[id] = pct
	}
	slices.Sort(malformed)

	res, err := h.prices.SimulatePriceChange(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, PriceChangeResponse{PriceResult: res, MalformedIDs: malformed}, h.log)
}

// HandleSimulateDelist handles POST /api/simulate/delist
func (h *Handler) HandleSimulateDelist(w http.ResponseWriter, r *http.Request) {
	var body DelistRequestBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		httputil.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil, h.log)
		return
	}

	req := simulation.DelistRequest{Weeks: body.Weeks}
	var malformed []string
	for _, raw := range body.IDs {
		id, err := domain.ParseSKUID(string(raw))
		if err != nil {
			malformed = append(malformed, string(raw))
			continue
		}
		req.IDs = append(req.IDs, id)
	}

	res, err := h.delists.SimulateDelist(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, DelistResponse{DelistResult: res, Weekly: res.Weekly(), MalformedIDs: malformed}, h.log)
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrEmptyCatalog) {
		httputil.WriteError(w, r, http.StatusServiceUnavailable, "Catalog is empty", nil, h.log)
		return
	}
	h.log.Error().Err(err).Msg("Simulation failed")
	httputil.WriteError(w, r, http.StatusInternalServerError, "Simulation failed", nil, h.log)
}
