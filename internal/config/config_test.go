package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Detector.SpikeFactor != 2 || cfg.Detector.SpikeMinimum != 50 {
		t.Fatalf("unexpected spike defaults: %+v", cfg.Detector)
	}
	if len(cfg.Detector.SuspiciousPorts) == 0 {
		t.Fatal("expected a default suspicious port list")
	}
	if cfg.Feeds.MaxItems != 10 {
		t.Fatalf("unexpected feed cap: %d", cfg.Feeds.MaxItems)
	}
	if !cfg.Feeds.Ransomwatch.Enabled || !cfg.Feeds.URLhaus.Enabled || !cfg.Feeds.ThreatFox.Enabled {
		t.Fatalf("feeds should default enabled: %+v", cfg.Feeds)
	}
	if cfg.Agent.StatePath == "" || cfg.Agent.CachePath == "" {
		t.Fatalf("persistence paths missing: %+v", cfg.Agent)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
agent:
  statePath: /var/lib/hostsentry/state.json
  networkInterval: 30s
detector:
  spikeFactor: 3
  spikeMinimum: 100
  suspiciousPorts: [4444]
alerts:
  webhookURL: https://hooks.example/abc
logging:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.StatePath != "/var/lib/hostsentry/state.json" {
		t.Fatalf("file value not applied: %s", cfg.Agent.StatePath)
	}
	if cfg.Agent.NetworkInterval != 30*time.Second {
		t.Fatalf("interval not parsed: %v", cfg.Agent.NetworkInterval)
	}
	if cfg.Detector.SpikeFactor != 3 || cfg.Detector.SpikeMinimum != 100 {
		t.Fatalf("detector overrides not applied: %+v", cfg.Detector)
	}
	if len(cfg.Detector.SuspiciousPorts) != 1 || cfg.Detector.SuspiciousPorts[0] != 4444 {
		t.Fatalf("suspicious ports not applied: %v", cfg.Detector.SuspiciousPorts)
	}
	if cfg.Alerts.WebhookURL != "https://hooks.example/abc" {
		t.Fatalf("webhook not applied: %s", cfg.Alerts.WebhookURL)
	}
	if !cfg.Logging.JSON || cfg.Logging.Level != "debug" {
		t.Fatalf("logging overrides not applied: %+v", cfg.Logging)
	}
	// Untouched sections keep defaults.
	if cfg.Agent.CachePath != "data/threat_cache.json" {
		t.Fatalf("default cache path lost: %s", cfg.Agent.CachePath)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for an explicit missing config path")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOSTSENTRY_SPIKE_MINIMUM", "75")
	t.Setenv("HOSTSENTRY_SUSPICIOUS_PORTS", "1337, 4444")
	t.Setenv("HOSTSENTRY_WEBHOOK_URL", "https://hooks.example/env")
	t.Setenv("HOSTSENTRY_URLHAUS_AUTH_KEY", "uh-key")
	t.Setenv("HOSTSENTRY_THREATFOX_AUTH_KEY", "tf-key")
	t.Setenv("HOSTSENTRY_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Detector.SpikeMinimum != 75 {
		t.Fatalf("env spike minimum not applied: %d", cfg.Detector.SpikeMinimum)
	}
	if len(cfg.Detector.SuspiciousPorts) != 2 || cfg.Detector.SuspiciousPorts[0] != 1337 {
		t.Fatalf("env suspicious ports not applied: %v", cfg.Detector.SuspiciousPorts)
	}
	if cfg.Alerts.WebhookURL != "https://hooks.example/env" {
		t.Fatalf("env webhook not applied: %s", cfg.Alerts.WebhookURL)
	}
	if cfg.Feeds.URLhaus.AuthKey != "uh-key" || cfg.Feeds.ThreatFox.AuthKey != "tf-key" {
		t.Fatal("env feed auth keys not applied")
	}
	if !cfg.Logging.JSON {
		t.Fatal("env log format not applied")
	}
}

func TestNormaliseRejectsNonPositiveThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("detector:\n  spikeFactor: 0\n  spikeMinimum: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Detector.SpikeFactor != 2 || cfg.Detector.SpikeMinimum != 50 {
		t.Fatalf("expected defaults restored, got %+v", cfg.Detector)
	}
}
