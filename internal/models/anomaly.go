package models

import "time"

// AnomalyType enumerates the detector's rule families.
type AnomalyType string

const (
	AnomalyNewListeningPort AnomalyType = "new_listening_port"
	AnomalyConnectionSpike  AnomalyType = "connection_spike"
	AnomalySuspiciousPort   AnomalyType = "suspicious_port"
	AnomalyThreatIntelMatch AnomalyType = "threat_intel_match"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyEvent is a rule-triggered deviation between two consecutive
// snapshots. Events are emitted and optionally dispatched, never persisted;
// only the triggering snapshot survives the cycle.
type AnomalyEvent struct {
	Type      AnomalyType    `json:"type"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}
