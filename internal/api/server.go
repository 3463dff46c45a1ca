package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ae3gis/internal/config"
	"ae3gis/internal/upstream"
	"ae3gis/internal/version"
)

const serviceName = "ae3gis-api"

// TopologyLister is the upstream call behind GET /api/gns3/get-topology.
type TopologyLister interface {
	ListTopologies(ctx context.Context) (json.RawMessage, error)
}

type Server struct {
	cfg        config.APIConfig
	topologies TopologyLister
	status     upstream.Interface
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    proxyMetrics
	server     *http.Server
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// NewServer wires the HTTP API. A nil registry registers metrics with the
// process-wide Prometheus registry.
func NewServer(
	cfg config.APIConfig,
	topologies TopologyLister,
	status upstream.Interface,
	logger *slog.Logger,
	registry *prometheus.Registry,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		registerer = registry
	}

	return &Server{
		cfg:        cfg,
		topologies: topologies,
		status:     status,
		logger:     logger,
		registry:   registry,
		metrics:    newProxyMetrics(registerer),
	}
}

func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(otelhttp.NewMiddleware(serviceName))
	router.Use(corsMiddleware)

	router.Get(s.cfg.HealthLivenessEndpoint, s.handleHealth)
	router.Get(s.cfg.HealthReadyEndpoint, s.handleHealth)
	router.Get("/version", version.Handler(serviceName))
	router.Handle("/metrics", s.metricsHandler())

	router.Route("/api/gns3", func(r chi.Router) {
		r.Get("/get-topology", s.handleGetTopologies)
		r.Get("/status", s.handleGetUpstreamStatus)
	})

	return router
}

func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.cfg.HTTPAddr, "upstreamConfigured", s.cfg.UpstreamConfigured())
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) metricsHandler() http.Handler {
	if s.registry != nil {
		return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
