package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ae3gis/internal/gns3"
)

const topologyErrorLabel = "fetch topologies error"

// handleGetTopologies relays the topology service's list response. Request
// body and headers are ignored.
func (s *Server) handleGetTopologies(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := s.topologies.ListTopologies(r.Context())
	if err != nil {
		kind := gns3.KindOf(err)
		s.metrics.observe(string(kind), time.Since(start))
		s.writeTopologyError(w, r, kind, err)
		return
	}

	s.metrics.observe(outcomeOK, time.Since(start))
	writeJSON(w, payload, http.StatusOK)
}

func (s *Server) writeTopologyError(w http.ResponseWriter, r *http.Request, kind gns3.Kind, err error) {
	s.logger.Error(topologyErrorLabel,
		"err", err.Error(),
		"kind", string(kind),
		"requestId", middleware.GetReqID(r.Context()),
	)

	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	writeJSON(w, errorEnvelope{Error: err.Error()}, statusForKind(kind))
}

// statusForKind is where per-kind status codes would go. Every kind currently
// collapses to 500 and callers distinguish failures by message only.
func statusForKind(gns3.Kind) int {
	return http.StatusInternalServerError
}
