package server

import (
	"net/http"

	"github.com/aristath/pricepack/internal/httputil"
)

// handleHealth handles health check requests. The catalog database is
// pinged so an unreachable catalog reports as unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "pricepack",
	}

	if db := s.container.CatalogDB; db != nil {
		if err := db.QuickCheck(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("Catalog database health check failed")
			response["status"] = "unhealthy"
			httputil.WriteData(w, r, http.StatusServiceUnavailable, response, s.log)
			return
		}
	}
	if p := s.container.Snapshot.Cached(); p != nil {
		response["catalog"] = p.Version
	}

	httputil.WriteData(w, r, http.StatusOK, response, s.log)
}
