package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultDevDatabaseURL = "sqlite://./data/ae3gis.db"

type Common struct {
	UpstreamURL     string
	UpstreamTimeout time.Duration
	DatabaseURL     string
	// DatabaseConnectTimeout bounds startup retries against the health store.
	// Zero keeps retrying until shutdown.
	DatabaseConnectTimeout time.Duration
	LogLevel               string
	MetricsAddr            string
}

type APIConfig struct {
	Common
	HTTPAddr                string
	UpstreamFreshnessWindow time.Duration
	HealthLivenessEndpoint  string
	HealthReadyEndpoint     string
}

type ProberConfig struct {
	Common
	ProbeInterval     time.Duration
	FailureThreshold  int
	AlertWebhookURL   string
	AlertDedupeWindow time.Duration
	AlertSendResolved bool
}

// UpstreamConfigured reports whether AE3GIS_URL carried a usable value.
func (c Common) UpstreamConfigured() bool {
	return strings.TrimSpace(c.UpstreamURL) != ""
}

func LoadAPI() (APIConfig, error) {
	// The API serves topologies without the health store, so it waits for it
	// in the background.
	common, err := loadCommon(0)
	if err != nil {
		return APIConfig{}, err
	}

	cfg := APIConfig{
		Common:                  common,
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		UpstreamFreshnessWindow: getDuration("UPSTREAM_FRESHNESS_WINDOW", 5*time.Minute),
		HealthLivenessEndpoint:  getEnv("HEALTH_LIVENESS_PATH", "/healthz"),
		HealthReadyEndpoint:     getEnv("HEALTH_READY_PATH", "/readyz"),
	}

	return cfg, nil
}

func LoadProber() (ProberConfig, error) {
	common, err := loadCommon(2 * time.Minute)
	if err != nil {
		return ProberConfig{}, err
	}

	cfg := ProberConfig{
		Common:            common,
		ProbeInterval:     getDuration("PROBE_INTERVAL", 30*time.Second),
		FailureThreshold:  getInt("PROBE_FAILURE_THRESHOLD", 1),
		AlertWebhookURL:   strings.TrimSpace(getEnv("ALERT_WEBHOOK_URL", "")),
		AlertDedupeWindow: getDuration("ALERT_DEDUPE_WINDOW", 5*time.Minute),
		AlertSendResolved: getBool("ALERT_SEND_RESOLVED", true),
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}

	return cfg, nil
}

func loadCommon(defaultConnectTimeout time.Duration) (Common, error) {
	// A missing AE3GIS_URL is reported per request, not at startup.
	upstreamURL := strings.TrimSpace(os.Getenv("AE3GIS_URL"))

	dbURL := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("CONNECTIONSTRINGS__DATABASE"),
		os.Getenv("CONNECTION_STRINGS__DATABASE"),
	)
	if dbURL == "" {
		dbURL = defaultDevDatabaseURL
	}

	common := Common{
		UpstreamURL:            upstreamURL,
		UpstreamTimeout:        getDuration("UPSTREAM_TIMEOUT", 30*time.Second), // 0 disables
		DatabaseURL:            dbURL,
		DatabaseConnectTimeout: getDuration("DATABASE_CONNECT_TIMEOUT", defaultConnectTimeout),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MetricsAddr:            getEnv("METRICS_ADDR", ""),
	}
	if common.UpstreamTimeout < 0 {
		common.UpstreamTimeout = 0
	}
	if common.DatabaseConnectTimeout < 0 {
		common.DatabaseConnectTimeout = 0
	}

	return common, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
