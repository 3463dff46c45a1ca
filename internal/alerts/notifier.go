package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"ae3gis/internal/upstream"
)

const (
	defaultHTTPTimeout  = 4 * time.Second
	defaultDedupeWindow = 5 * time.Minute
)

type Config struct {
	WebhookURL   string
	DedupeWindow time.Duration
	SendResolved bool
}

// Transition is a change of upstream status observed by the prober.
type Transition struct {
	Upstream string
	From     upstream.Status
	To       upstream.Status
	Error    string
	Failures int
	TS       time.Time
}

// Notifier posts upstream status alerts to a webhook. A zero-value WebhookURL
// turns it into a no-op.
type Notifier struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	mu         sync.Mutex
	recentSent map[string]time.Time
}

type outboundAlert struct {
	Event     string         `json:"event"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	Timestamp string         `json:"timestamp"`
	DedupeKey string         `json:"dedupeKey,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if cfg.DedupeWindow < 0 {
		cfg.DedupeWindow = defaultDedupeWindow
	}
	return &Notifier{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		recentSent: make(map[string]time.Time),
	}
}

func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != ""
}

// NotifyTransition sends an alert when the upstream goes down or, if
// SendResolved is set, comes back. Other transitions are ignored.
func (n *Notifier) NotifyTransition(ctx context.Context, transition Transition) {
	if !n.Enabled() {
		return
	}
	alert, ok := mapTransition(transition, n.cfg.SendResolved)
	if !ok {
		return
	}
	if n.cfg.DedupeWindow > 0 && n.shouldSuppress(alert.DedupeKey, n.cfg.DedupeWindow) {
		n.logger.Debug("alert suppressed", "event", alert.Event, "dedupeKey", alert.DedupeKey)
		return
	}
	if err := n.sendWebhook(ctx, alert); err != nil {
		n.logger.Error("webhook alert send failed", "err", err, "event", alert.Event)
	}
}

func (n *Notifier) shouldSuppress(key string, window time.Duration) bool {
	now := time.Now().UTC()
	n.mu.Lock()
	defer n.mu.Unlock()

	for k, ts := range n.recentSent {
		if now.Sub(ts) > window {
			delete(n.recentSent, k)
		}
	}

	if ts, ok := n.recentSent[key]; ok && now.Sub(ts) <= window {
		return true
	}
	n.recentSent[key] = now
	return false
}

func (n *Notifier) sendWebhook(ctx context.Context, alert outboundAlert) error {
	payload := map[string]any{
		"source":  "ae3gis",
		"channel": "webhook",
		"alert":   alert,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func mapTransition(transition Transition, sendResolved bool) (outboundAlert, bool) {
	if transition.From == transition.To {
		return outboundAlert{}, false
	}

	name := strings.TrimSpace(transition.Upstream)
	if name == "" {
		name = upstream.DefaultName
	}
	ts := transition.TS.UTC().Format(time.RFC3339)
	details := map[string]any{
		"upstream": name,
		"from":     string(transition.From),
		"to":       string(transition.To),
	}

	switch transition.To {
	case upstream.StatusDisconnected:
		details["consecutiveFailures"] = transition.Failures
		if transition.Error != "" {
			details["error"] = transition.Error
		}
		return outboundAlert{
			Event:     "upstream_down",
			Title:     "Topology service unreachable",
			Message:   fmt.Sprintf("Upstream %s failed %d consecutive probe(s): %s", name, transition.Failures, transition.Error),
			Severity:  "critical",
			Timestamp: ts,
			DedupeKey: "upstream_down:" + name,
			Details:   details,
		}, true
	case upstream.StatusConnected:
		if !sendResolved || transition.From != upstream.StatusDisconnected {
			return outboundAlert{}, false
		}
		return outboundAlert{
			Event:     "upstream_recovered",
			Title:     "Topology service recovered",
			Message:   fmt.Sprintf("Upstream %s is answering again", name),
			Severity:  "info",
			Timestamp: ts,
			DedupeKey: "upstream_recovered:" + name,
			Details:   details,
		}, true
	default:
		return outboundAlert{}, false
	}
}
