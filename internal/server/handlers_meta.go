package server

import (
	"net/http"
	"time"

	"imagehoster/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		OK:      true,
		Version: s.version,
		Date:    time.Now().UTC(),
	})
}
