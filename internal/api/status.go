package api

import (
	"context"
	"net/http"
	"time"
)

const statusTimeout = 5 * time.Second

func (s *Server) handleGetUpstreamStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	response, err := s.status.GetStatus(ctx)
	if err != nil {
		s.logger.Error("upstream status failed", "err", err)
		writeJSON(w, errorEnvelope{Error: err.Error()}, http.StatusInternalServerError)
		return
	}

	writeJSON(w, response, http.StatusOK)
}
