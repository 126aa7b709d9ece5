package detector

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/config"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
	"github.com/hostsentrystack/hostsentry-agent/internal/utils"
)

// IndicatorMatcher answers probabilistic membership queries against the
// aggregated threat-intelligence cache. A nil matcher disables the
// intel-match rule.
type IndicatorMatcher interface {
	MayContain(value string) bool
}

// Detector compares two consecutive snapshots and emits anomaly events.
// Rules are evaluated independently; one firing never suppresses another.
type Detector struct {
	spikeFactor     int
	spikeMinimum    int
	suspiciousPorts map[int]struct{}
	logger          *slog.Logger
}

// New constructs a Detector with the configured rule constants.
func New(cfg config.DetectorConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	suspicious := make(map[int]struct{}, len(cfg.SuspiciousPorts))
	for _, port := range cfg.SuspiciousPorts {
		suspicious[port] = struct{}{}
	}
	return &Detector{
		spikeFactor:     cfg.SpikeFactor,
		spikeMinimum:    cfg.SpikeMinimum,
		suspiciousPorts: suspicious,
		logger:          logger,
	}
}

// Detect evaluates all rules for the current snapshot against the previous
// one. A nil previous snapshot means no baseline: the result is always empty,
// so the first cycle after a restart never raises anomalies.
func (d *Detector) Detect(current models.Snapshot, previous *models.Snapshot, intel IndicatorMatcher) []models.AnomalyEvent {
	if previous == nil {
		return []models.AnomalyEvent{}
	}

	now := time.Now().UTC()
	events := make([]models.AnomalyEvent, 0, 4)

	if ev, ok := d.detectNewPorts(current, previous, now); ok {
		events = append(events, ev)
	}
	if ev, ok := d.detectSpike(current, previous, now); ok {
		events = append(events, ev)
	}
	if ev, ok := d.detectSuspiciousPorts(current, now); ok {
		events = append(events, ev)
	}
	if ev, ok := d.detectIntelMatches(current, intel, now); ok {
		events = append(events, ev)
	}

	return events
}

// detectNewPorts flags listener port numbers absent from the baseline. The
// key is the port number alone, not (protocol, port): a new protocol on an
// already-seen port is a known false-negative class, kept deliberately.
func (d *Detector) detectNewPorts(current models.Snapshot, previous *models.Snapshot, now time.Time) (models.AnomalyEvent, bool) {
	baseline := previous.PortNumbers()
	seen := make(map[int]struct{})
	newPorts := make([]int, 0)
	for _, p := range current.Ports {
		if _, known := baseline[p.Port]; known {
			continue
		}
		if _, dup := seen[p.Port]; dup {
			continue
		}
		seen[p.Port] = struct{}{}
		newPorts = append(newPorts, p.Port)
	}
	if len(newPorts) == 0 {
		return models.AnomalyEvent{}, false
	}
	sort.Ints(newPorts)

	return models.AnomalyEvent{
		Type:     models.AnomalyNewListeningPort,
		Severity: models.SeverityMedium,
		Details: map[string]any{
			"ports": newPorts,
			"count": len(newPorts),
		},
		Timestamp: now,
	}, true
}

// detectSpike fires iff current > spikeFactor*previous AND current >
// spikeMinimum, both strict. The minimum guards against noise when the
// baseline is small: 1 -> 3 connections is a 200% rise but never fires.
func (d *Detector) detectSpike(current models.Snapshot, previous *models.Snapshot, now time.Time) (models.AnomalyEvent, bool) {
	c := len(current.Connections)
	p := len(previous.Connections)
	if c <= d.spikeFactor*p || c <= d.spikeMinimum {
		return models.AnomalyEvent{}, false
	}

	percent := 0
	if p > 0 {
		percent = int(math.Round((float64(c)/float64(p) - 1) * 100))
	}

	return models.AnomalyEvent{
		Type:     models.AnomalyConnectionSpike,
		Severity: models.SeverityHigh,
		Details: map[string]any{
			"previous":        p,
			"current":         c,
			"percentIncrease": percent,
		},
		Timestamp: now,
	}, true
}

// detectSuspiciousPorts flags connections whose peer port is in the
// known-bad set. All matches for the cycle land in one event.
func (d *Detector) detectSuspiciousPorts(current models.Snapshot, now time.Time) (models.AnomalyEvent, bool) {
	matches := make([]map[string]any, 0)
	for _, conn := range current.Connections {
		port := utils.PortFromAddress(conn.PeerAddress)
		if _, bad := d.suspiciousPorts[port]; !bad {
			continue
		}
		matches = append(matches, map[string]any{
			"peer":     conn.PeerAddress,
			"local":    conn.LocalAddress,
			"protocol": conn.Protocol,
			"port":     port,
			"process":  conn.ProcessLabel,
		})
	}
	if len(matches) == 0 {
		return models.AnomalyEvent{}, false
	}

	return models.AnomalyEvent{
		Type:     models.AnomalySuspiciousPort,
		Severity: models.SeverityCritical,
		Details: map[string]any{
			"connections": matches,
			"count":       len(matches),
		},
		Timestamp: now,
	}, true
}

// detectIntelMatches checks connection peers against the aggregated threat
// cache. The matcher is bloom-backed, so hits are candidates, not verdicts;
// the event says so.
func (d *Detector) detectIntelMatches(current models.Snapshot, intel IndicatorMatcher, now time.Time) (models.AnomalyEvent, bool) {
	if intel == nil {
		return models.AnomalyEvent{}, false
	}

	matches := make([]map[string]any, 0)
	for _, conn := range current.Connections {
		host := utils.HostFromAddress(conn.PeerAddress)
		if host == "" || host == "*" || !intel.MayContain(host) {
			continue
		}
		matches = append(matches, map[string]any{
			"peer":     conn.PeerAddress,
			"host":     host,
			"protocol": conn.Protocol,
			"process":  conn.ProcessLabel,
		})
	}
	if len(matches) == 0 {
		return models.AnomalyEvent{}, false
	}

	return models.AnomalyEvent{
		Type:     models.AnomalyThreatIntelMatch,
		Severity: models.SeverityCritical,
		Details: map[string]any{
			"connections": matches,
			"count":       len(matches),
			"note":        "probabilistic indicator match; verify against the threat cache",
		},
		Timestamp: now,
	}, true
}
