package upstream

import "time"

// DefaultName identifies the topology service row in upstream_health.
const DefaultName = "gns3"

type Status string

const (
	StatusNotConfigured Status = "not_configured"
	StatusUnknown       Status = "unknown"
	StatusConnected     Status = "connected"
	StatusDisconnected  Status = "disconnected"
	StatusStale         Status = "stale"
)

type Health struct {
	Name                string
	LastTestedAt        *time.Time
	LastSuccessAt       *time.Time
	LastError           *string
	LastStatusCode      *int
	LastLatencyMs       int64
	LastProbeID         *string
	ConsecutiveFailures int
}

// ProbeResult is one probe outcome as written by the prober.
type ProbeResult struct {
	ID         string
	TestedAt   time.Time
	StatusCode int
	LatencyMs  int64
	Error      string
}

type StatusResponse struct {
	Upstream            string  `json:"upstream"`
	Configured          bool    `json:"configured"`
	Status              Status  `json:"status"`
	Endpoint            string  `json:"endpoint,omitempty"`
	LastTestedAt        *string `json:"lastTestedAt,omitempty"`
	LastSuccessAt       *string `json:"lastSuccessAt,omitempty"`
	LastError           *string `json:"lastError,omitempty"`
	LastStatusCode      *int    `json:"lastStatusCode,omitempty"`
	LastLatencyMs       int64   `json:"lastLatencyMs"`
	LastProbeID         *string `json:"lastProbeId,omitempty"`
	ConsecutiveFailures int     `json:"consecutiveFailures"`
}
