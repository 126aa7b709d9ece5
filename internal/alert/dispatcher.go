package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/config"
	"github.com/hostsentrystack/hostsentry-agent/internal/metrics"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

// webhookPayload is the outbound rendering of an anomaly event.
type webhookPayload struct {
	Title     string         `json:"title"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

// Dispatcher delivers anomaly events to the configured webhook. Delivery is
// best-effort and one-shot: failures are logged and counted, never returned,
// and the detection cadence provides the implicit retry for persistent
// conditions. Without a webhook URL every event is still surfaced in the log.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
	inflight   sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher from alert configuration.
func NewDispatcher(cfg config.AlertsConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Dispatch sends one event without blocking the caller. The send runs in its
// own goroutine; its outcome is only logged.
func (d *Dispatcher) Dispatch(event models.AnomalyEvent) {
	if d.webhookURL == "" {
		// Silent drops are disallowed: no channel means the log is the channel.
		d.logger.Warn("anomaly detected (no webhook configured)",
			slog.String("type", string(event.Type)),
			slog.String("severity", string(event.Severity)),
			slog.Any("details", event.Details))
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		if err := d.send(event); err != nil {
			metrics.ObserveDispatch(metrics.OutcomeError)
			d.logger.Error("alert delivery failed",
				slog.String("type", string(event.Type)),
				slog.Any("error", err))
			return
		}
		metrics.ObserveDispatch(metrics.OutcomeSuccess)
		d.logger.Info("alert delivered",
			slog.String("type", string(event.Type)),
			slog.String("severity", string(event.Severity)))
	}()
}

// Wait blocks until all in-flight deliveries settle. The agent calls this on
// shutdown so a send already started can finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) send(event models.AnomalyEvent) error {
	payload := webhookPayload{
		Title:     fmt.Sprintf("HostSentry: %s (%s)", event.Type, event.Severity),
		Type:      string(event.Type),
		Severity:  string(event.Severity),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Details:   event.Details,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
