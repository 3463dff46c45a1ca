package prober

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ae3gis/internal/alerts"
	"ae3gis/internal/config"
	"ae3gis/internal/gns3"
	"ae3gis/internal/upstream"
)

// Upstream is the subset of gns3.Client the prober drives.
type Upstream interface {
	Configured() bool
	ListTopologies(ctx context.Context) (json.RawMessage, error)
}

type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, transition alerts.Transition)
}

// Prober periodically issues the topology list call and records the outcome
// in the shared upstream_health table.
type Prober struct {
	cfg      config.ProberConfig
	client   Upstream
	repo     upstream.Repository
	notifier TransitionNotifier
	logger   *slog.Logger
	registry *prometheus.Registry
	now      func() time.Time

	lastStatus upstream.Status
	metrics    proberMetrics
}

type proberMetrics struct {
	probes   *prometheus.CounterVec
	duration prometheus.Histogram
	up       prometheus.Gauge
}

func New(
	cfg config.ProberConfig,
	client Upstream,
	repo upstream.Repository,
	notifier TransitionNotifier,
	logger *slog.Logger,
	registry *prometheus.Registry,
) *Prober {
	if logger == nil {
		logger = slog.Default()
	}

	metrics := proberMetrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_probes_total",
			Help: "Number of topology service probes by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "upstream_probe_duration_seconds",
			Help:    "Latency of topology service probes",
			Buckets: prometheus.DefBuckets,
		}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upstream_up",
			Help: "1 when the last topology service probe succeeded",
		}),
	}
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		registerer = registry
	}
	registerer.MustRegister(metrics.probes, metrics.duration, metrics.up)

	return &Prober{
		cfg:        cfg,
		client:     client,
		repo:       repo,
		notifier:   notifier,
		logger:     logger,
		registry:   registry,
		now:        time.Now,
		lastStatus: upstream.StatusUnknown,
		metrics:    metrics,
	}
}

func (p *Prober) Run(ctx context.Context) error {
	if p.cfg.MetricsAddr != "" {
		go p.runMetricsServer(ctx)
	}

	p.logger.Info("prober started", "interval", p.cfg.ProbeInterval.String(), "upstreamConfigured", p.client.Configured())

	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		if _, err := p.ProbeOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("record probe failed", "err", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("prober shutting down")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProbeOnce runs a single probe and returns the status it implies. The
// returned error only reports persistence failures.
func (p *Prober) ProbeOnce(ctx context.Context) (upstream.Status, error) {
	if !p.client.Configured() {
		p.metrics.probes.WithLabelValues(string(upstream.StatusNotConfigured)).Inc()
		p.metrics.up.Set(0)
		p.transition(ctx, upstream.StatusNotConfigured, "", 0)
		return upstream.StatusNotConfigured, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeInterval)
	defer cancel()

	result := upstream.ProbeResult{
		ID:       uuid.NewString(),
		TestedAt: p.now().UTC(),
	}
	start := time.Now()
	_, err := p.client.ListTopologies(probeCtx)
	elapsed := time.Since(start)
	result.LatencyMs = elapsed.Milliseconds()
	p.metrics.duration.Observe(elapsed.Seconds())

	if err == nil {
		p.metrics.probes.WithLabelValues("ok").Inc()
		p.metrics.up.Set(1)
		if rerr := p.repo.RecordSuccess(ctx, upstream.DefaultName, result); rerr != nil {
			return "", rerr
		}
		p.logger.Debug("upstream probe ok", "probeId", result.ID, "latencyMs", result.LatencyMs)
		p.transition(ctx, upstream.StatusConnected, "", 0)
		return upstream.StatusConnected, nil
	}

	kind := gns3.KindOf(err)
	var gnsErr *gns3.Error
	if errors.As(err, &gnsErr) {
		result.StatusCode = gnsErr.Status
	}
	result.Error = err.Error()

	p.metrics.probes.WithLabelValues(string(kind)).Inc()
	p.metrics.up.Set(0)
	p.logger.Warn("upstream probe failed", "probeId", result.ID, "kind", string(kind), "err", err)

	if rerr := p.repo.RecordFailure(ctx, upstream.DefaultName, result); rerr != nil {
		return "", rerr
	}

	health, rerr := p.repo.Get(ctx, upstream.DefaultName)
	if rerr != nil {
		return "", rerr
	}
	failures := 1
	if health != nil {
		failures = health.ConsecutiveFailures
	}

	// Below the threshold the previous status is kept so one blip does not alert.
	if failures < p.cfg.FailureThreshold {
		return p.lastStatus, nil
	}
	p.transition(ctx, upstream.StatusDisconnected, result.Error, failures)
	return upstream.StatusDisconnected, nil
}

func (p *Prober) transition(ctx context.Context, next upstream.Status, message string, failures int) {
	previous := p.lastStatus
	p.lastStatus = next
	if previous == next {
		return
	}

	p.logger.Info("upstream status changed", "from", string(previous), "to", string(next))
	if p.notifier == nil {
		return
	}
	p.notifier.NotifyTransition(ctx, alerts.Transition{
		Upstream: upstream.DefaultName,
		From:     previous,
		To:       next,
		Error:    message,
		Failures: failures,
		TS:       p.now().UTC(),
	})
}

func (p *Prober) runMetricsServer(ctx context.Context) {
	handler := promhttp.Handler()
	if p.registry != nil {
		handler = promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
	}
	srv := &http.Server{
		Addr:              p.cfg.MetricsAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	p.logger.Info("metrics server listening", "addr", p.cfg.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		p.logger.Error("metrics server error", "err", err)
	}
}
