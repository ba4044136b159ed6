// Package handlers exposes catalog cache control over HTTP.
package handlers

import (
	"net/http"
	"time"

	"github.com/aristath/pricepack/internal/httputil"
	"github.com/aristath/pricepack/internal/modules/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles catalog HTTP requests
type Handler struct {
	snapshot *catalog.Snapshot
	log      zerolog.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(snapshot *catalog.Snapshot, log zerolog.Logger) *Handler {
	return &Handler{
		snapshot: snapshot,
		log:      log.With().Str("handler", "catalog").Logger(),
	}
}

// RegisterRoutes registers the catalog routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Post("/invalidate", h.HandleInvalidate)
		r.Post("/refresh", h.HandleRefresh)
	})
}

// StatusResponse describes the source and the cached projection.
type StatusResponse struct {
	Source     catalog.Version  `json:"source" msgpack:"source"`
	Cached     *catalog.Version `json:"cached,omitempty" msgpack:"cached,omitempty"`
	BuiltAt    *time.Time       `json:"built_at,omitempty" msgpack:"built_at,omitempty"`
	Generation uint64           `json:"generation" msgpack:"generation"`
	Stale      bool             `json:"stale" msgpack:"stale"`
}

// HandleStatus handles GET /api/catalog/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	version, err := h.snapshot.Source().Version(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read catalog version")
		httputil.WriteError(w, r, http.StatusInternalServerError, "Failed to read catalog version", nil, h.log)
		return
	}

	resp := StatusResponse{Source: version, Generation: h.snapshot.Generation()}
	if p := h.snapshot.Cached(); p != nil {
		cached, builtAt := p.Version, p.BuiltAt
		resp.Cached = &cached
		resp.BuiltAt = &builtAt
		resp.Stale = cached != version
	}
	httputil.WriteData(w, r, http.StatusOK, resp, h.log)
}

// HandleInvalidate handles POST /api/catalog/invalidate
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	h.snapshot.Invalidate()
	httputil.WriteData(w, r, http.StatusOK, map[string]bool{"invalidated": true}, h.log)
}

// HandleRefresh handles POST /api/catalog/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	changed, err := h.snapshot.Refresh(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Catalog refresh failed")
		httputil.WriteError(w, r, http.StatusInternalServerError, "Catalog refresh failed", nil, h.log)
		return
	}
	httputil.WriteData(w, r, http.StatusOK, map[string]bool{"invalidated": changed}, h.log)
}
