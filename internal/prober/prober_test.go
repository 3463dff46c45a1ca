package prober

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	_ "modernc.org/sqlite"

	"ae3gis/internal/alerts"
	"ae3gis/internal/config"
	"ae3gis/internal/gns3"
	"ae3gis/internal/upstream"
)

func TestProbeOnceRecordsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"topologies":[]}`))
	}))
	defer srv.Close()

	repo := newTestRepository(t, "prober_success")
	notifier := &recordingNotifier{}
	p := newTestProber(t, gns3.NewClient(srv.URL, time.Second), repo, notifier, 1)

	status, err := p.ProbeOnce(context.Background())
	if err != nil {
		t.Fatalf("ProbeOnce() error = %v", err)
	}
	if status != upstream.StatusConnected {
		t.Fatalf("status = %s, want %s", status, upstream.StatusConnected)
	}

	health, err := repo.Get(context.Background(), upstream.DefaultName)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if health == nil || health.LastSuccessAt == nil || health.LastProbeID == nil {
		t.Fatalf("health = %+v, want recorded success with probe id", health)
	}
	if got := testutil.ToFloat64(p.metrics.up); got != 1 {
		t.Fatalf("upstream_up = %v, want 1", got)
	}
	if got := notifier.transitions(); len(got) != 1 || got[0].To != upstream.StatusConnected {
		t.Fatalf("transitions = %+v, want one to connected", got)
	}
}

func TestProbeOnceFailureThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo := newTestRepository(t, "prober_threshold")
	notifier := &recordingNotifier{}
	p := newTestProber(t, gns3.NewClient(srv.URL, time.Second), repo, notifier, 2)
	ctx := context.Background()

	status, err := p.ProbeOnce(ctx)
	if err != nil {
		t.Fatalf("ProbeOnce() error = %v", err)
	}
	if status != upstream.StatusUnknown {
		t.Fatalf("first failure status = %s, want %s", status, upstream.StatusUnknown)
	}
	if n := len(notifier.transitions()); n != 0 {
		t.Fatalf("transitions after first failure = %d, want 0", n)
	}

	status, err = p.ProbeOnce(ctx)
	if err != nil {
		t.Fatalf("ProbeOnce() error = %v", err)
	}
	if status != upstream.StatusDisconnected {
		t.Fatalf("second failure status = %s, want %s", status, upstream.StatusDisconnected)
	}

	got := notifier.transitions()
	if len(got) != 1 || got[0].Failures != 2 || got[0].Error != "GNS3 API error: 503 overloaded\n" {
		t.Fatalf("transitions = %+v", got)
	}

	health, err := repo.Get(ctx, upstream.DefaultName)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if health.LastStatusCode == nil || *health.LastStatusCode != http.StatusServiceUnavailable {
		t.Fatalf("LastStatusCode = %v, want 503", health.LastStatusCode)
	}
	if got := testutil.ToFloat64(p.metrics.probes.WithLabelValues(string(gns3.KindUpstreamStatus))); got != 2 {
		t.Fatalf("upstream_status probes = %v, want 2", got)
	}
}

func TestProbeOnceNotConfigured(t *testing.T) {
	repo := newTestRepository(t, "prober_not_configured")
	notifier := &recordingNotifier{}
	p := newTestProber(t, gns3.NewClient("", time.Second), repo, notifier, 1)

	status, err := p.ProbeOnce(context.Background())
	if err != nil {
		t.Fatalf("ProbeOnce() error = %v", err)
	}
	if status != upstream.StatusNotConfigured {
		t.Fatalf("status = %s, want %s", status, upstream.StatusNotConfigured)
	}
	health, err := repo.Get(context.Background(), upstream.DefaultName)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if health != nil {
		t.Fatalf("health = %+v, want nothing recorded", health)
	}
}

func TestRunProbesUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	repo := newTestRepository(t, "prober_run")
	p := newTestProber(t, gns3.NewClient(srv.URL, time.Second), repo, &recordingNotifier{}, 1)
	p.cfg.ProbeInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := p.Run(ctx); err == nil {
		t.Fatal("Run() error = nil, want context error")
	}
	if calls.Load() < 2 {
		t.Fatalf("upstream calls = %d, want at least 2", calls.Load())
	}
}

func newTestProber(t *testing.T, client Upstream, repo upstream.Repository, notifier TransitionNotifier, threshold int) *Prober {
	t.Helper()
	cfg := config.ProberConfig{
		ProbeInterval:    time.Second,
		FailureThreshold: threshold,
	}
	return New(cfg, client, repo, notifier, nil, prometheus.NewRegistry())
}

func newTestRepository(t *testing.T, name string) *upstream.SQLRepository {
	t.Helper()

	db, err := sqlx.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	repo := upstream.NewSQLRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return repo
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []alerts.Transition
}

func (r *recordingNotifier) NotifyTransition(_ context.Context, transition alerts.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, transition)
}

func (r *recordingNotifier) transitions() []alerts.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerts.Transition(nil), r.seen...)
}
