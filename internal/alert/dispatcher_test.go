package alert

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/config"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

func sampleEvent() models.AnomalyEvent {
	return models.AnomalyEvent{
		Type:      models.AnomalyNewListeningPort,
		Severity:  models.SeverityMedium,
		Details:   map[string]any{"ports": []int{8080}, "count": 1},
		Timestamp: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatchDeliversWebhookPayload(t *testing.T) {
	var received atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.Store(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDispatcher(config.AlertsConfig{WebhookURL: server.URL, Timeout: time.Second}, nil)
	d.Dispatch(sampleEvent())
	d.Wait()

	raw, ok := received.Load().([]byte)
	if !ok {
		t.Fatal("webhook never received the event")
	}

	var payload struct {
		Title     string         `json:"title"`
		Type      string         `json:"type"`
		Severity  string         `json:"severity"`
		Timestamp string         `json:"timestamp"`
		Details   map[string]any `json:"details"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload.Type != "new_listening_port" || payload.Severity != "medium" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Timestamp != "2026-08-28T12:00:00Z" {
		t.Fatalf("unexpected timestamp: %s", payload.Timestamp)
	}
	if payload.Details["count"].(float64) != 1 {
		t.Fatalf("details not carried: %+v", payload.Details)
	}
}

func TestDispatchSwallowsDeliveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(config.AlertsConfig{WebhookURL: server.URL, Timeout: time.Second}, nil)

	// Dispatch has no error return; a failed delivery must simply settle.
	d.Dispatch(sampleEvent())
	d.Wait()
}

func TestDispatchWithUnreachableEndpoint(t *testing.T) {
	d := NewDispatcher(config.AlertsConfig{WebhookURL: "http://127.0.0.1:1/none", Timeout: 200 * time.Millisecond}, nil)
	d.Dispatch(sampleEvent())
	d.Wait()
}

func TestDispatchWithoutWebhookLogsOnly(t *testing.T) {
	d := NewDispatcher(config.AlertsConfig{Timeout: time.Second}, nil)
	d.Dispatch(sampleEvent())
	d.Wait()
}
