package upstream

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const defaultFreshnessWindow = 5 * time.Minute

type Interface interface {
	GetStatus(ctx context.Context) (StatusResponse, error)
}

// Service answers status queries for one upstream from its recorded probes.
type Service struct {
	repo            Repository
	logger          *slog.Logger
	name            string
	endpoint        string
	freshnessWindow time.Duration
	now             func() time.Time
}

// New builds a status service. endpoint is empty when AE3GIS_URL is unset.
func New(repo Repository, endpoint string, freshnessWindow time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if freshnessWindow <= 0 {
		freshnessWindow = defaultFreshnessWindow
	}

	return &Service{
		repo:            repo,
		logger:          logger,
		name:            DefaultName,
		endpoint:        strings.TrimSpace(endpoint),
		freshnessWindow: freshnessWindow,
		now:             time.Now,
	}
}

func (s *Service) GetStatus(ctx context.Context) (StatusResponse, error) {
	configured := s.endpoint != ""
	response := StatusResponse{
		Upstream:   s.name,
		Configured: configured,
		Endpoint:   s.endpoint,
	}

	health, err := s.repo.Get(ctx, s.name)
	if err != nil {
		return StatusResponse{}, err
	}

	response.Status = ComputeStatus(health, configured, s.freshnessWindow, s.now().UTC())
	if health == nil {
		s.logger.Debug("no upstream probe recorded yet", "upstream", s.name)
		return response, nil
	}

	response.LastTestedAt = formatTimePtr(health.LastTestedAt)
	response.LastSuccessAt = formatTimePtr(health.LastSuccessAt)
	response.LastError = health.LastError
	response.LastStatusCode = health.LastStatusCode
	response.LastLatencyMs = health.LastLatencyMs
	response.LastProbeID = health.LastProbeID
	response.ConsecutiveFailures = health.ConsecutiveFailures

	return response, nil
}

// ComputeStatus derives the externally reported status of an upstream from its
// last recorded probe.
func ComputeStatus(health *Health, configured bool, freshnessWindow time.Duration, now time.Time) Status {
	if !configured {
		return StatusNotConfigured
	}
	if health == nil || health.LastTestedAt == nil {
		return StatusUnknown
	}

	if health.LastError != nil && strings.TrimSpace(*health.LastError) != "" {
		if health.LastSuccessAt == nil || health.LastTestedAt.After(*health.LastSuccessAt) {
			return StatusDisconnected
		}
	}

	if health.LastSuccessAt == nil {
		return StatusUnknown
	}
	if freshnessWindow > 0 && now.Sub(health.LastSuccessAt.UTC()) > freshnessWindow {
		return StatusStale
	}
	return StatusConnected
}

func formatTimePtr(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(time.RFC3339)
	return &formatted
}
