package config

import (
	"testing"
	"time"
)

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("AE3GIS_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CONNECTIONSTRINGS__DATABASE", "")
	t.Setenv("UPSTREAM_TIMEOUT", "")
	t.Setenv("DATABASE_CONNECT_TIMEOUT", "")

	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI() error = %v", err)
	}
	if cfg.UpstreamConfigured() {
		t.Fatal("UpstreamConfigured() = true, want false when AE3GIS_URL is unset")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.DatabaseURL != defaultDevDatabaseURL {
		t.Fatalf("DatabaseURL = %q, want %q", cfg.DatabaseURL, defaultDevDatabaseURL)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Fatalf("UpstreamTimeout = %s, want 30s", cfg.UpstreamTimeout)
	}
	if cfg.DatabaseConnectTimeout != 0 {
		t.Fatalf("DatabaseConnectTimeout = %s, want 0 (retry until shutdown)", cfg.DatabaseConnectTimeout)
	}
}

func TestLoadAPIReadsUpstream(t *testing.T) {
	t.Setenv("AE3GIS_URL", "  http://svc:8000  ")
	t.Setenv("UPSTREAM_TIMEOUT", "0")
	t.Setenv("CONNECTIONSTRINGS__DATABASE", "postgres://ae3gis@db/ae3gis")
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI() error = %v", err)
	}
	if cfg.UpstreamURL != "http://svc:8000" {
		t.Fatalf("UpstreamURL = %q, want %q", cfg.UpstreamURL, "http://svc:8000")
	}
	if cfg.UpstreamTimeout != 0 {
		t.Fatalf("UpstreamTimeout = %s, want 0", cfg.UpstreamTimeout)
	}
	if cfg.DatabaseURL != "postgres://ae3gis@db/ae3gis" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoadProberClampsInvalidValues(t *testing.T) {
	t.Setenv("PROBE_INTERVAL", "-5s")
	t.Setenv("PROBE_FAILURE_THRESHOLD", "0")
	t.Setenv("ALERT_SEND_RESOLVED", "false")
	t.Setenv("ALERT_WEBHOOK_URL", " http://hooks/ae3gis ")

	cfg, err := LoadProber()
	if err != nil {
		t.Fatalf("LoadProber() error = %v", err)
	}
	if cfg.ProbeInterval != 30*time.Second {
		t.Fatalf("ProbeInterval = %s, want 30s", cfg.ProbeInterval)
	}
	if cfg.FailureThreshold != 1 {
		t.Fatalf("FailureThreshold = %d, want 1", cfg.FailureThreshold)
	}
	if cfg.AlertSendResolved {
		t.Fatal("AlertSendResolved = true, want false")
	}
	if cfg.AlertWebhookURL != "http://hooks/ae3gis" {
		t.Fatalf("AlertWebhookURL = %q", cfg.AlertWebhookURL)
	}
}

func TestDatabaseConnectTimeoutPerBinary(t *testing.T) {
	t.Setenv("DATABASE_CONNECT_TIMEOUT", "")

	prober, err := LoadProber()
	if err != nil {
		t.Fatalf("LoadProber() error = %v", err)
	}
	if prober.DatabaseConnectTimeout != 2*time.Minute {
		t.Fatalf("prober DatabaseConnectTimeout = %s, want 2m", prober.DatabaseConnectTimeout)
	}

	t.Setenv("DATABASE_CONNECT_TIMEOUT", "20s")
	api, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI() error = %v", err)
	}
	if api.DatabaseConnectTimeout != 20*time.Second {
		t.Fatalf("api DatabaseConnectTimeout = %s, want 20s", api.DatabaseConnectTimeout)
	}

	t.Setenv("DATABASE_CONNECT_TIMEOUT", "-1s")
	prober, err = LoadProber()
	if err != nil {
		t.Fatalf("LoadProber() error = %v", err)
	}
	if prober.DatabaseConnectTimeout != 0 {
		t.Fatalf("prober DatabaseConnectTimeout = %s, want 0 for a negative value", prober.DatabaseConnectTimeout)
	}
}
