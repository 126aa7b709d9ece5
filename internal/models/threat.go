package models

import "time"

// ThreatItemType enumerates normalized feed item shapes.
type ThreatItemType string

const (
	ThreatItemVictim ThreatItemType = "victim"
	ThreatItemURL    ThreatItemType = "url"
	ThreatItemIOC    ThreatItemType = "ioc"
)

// ThreatItem is the common shape every feed normalizes into. Source-specific
// fields are optional; Type and Severity are always set.
type ThreatItem struct {
	Type     ThreatItemType `json:"type"`
	Severity Severity       `json:"severity"`
	Victim   string         `json:"victim,omitempty"`
	Group    string         `json:"group,omitempty"`
	URL      string         `json:"url,omitempty"`
	Host     string         `json:"host,omitempty"`
	Threat   string         `json:"threat,omitempty"`
	IOC      string         `json:"ioc,omitempty"`
	IOCType  string         `json:"iocType,omitempty"`
	Malware  string         `json:"malware,omitempty"`
	Date     string         `json:"date"`
}

// SourceStatus labels a feed's outcome for one aggregation cycle.
type SourceStatus string

const (
	SourceOK    SourceStatus = "ok"
	SourceError SourceStatus = "error"
)

// SourceResult is one feed's output for one aggregation cycle. A set Error
// with empty Items means the fetch failed in total; the failure never aborts
// the cycle for other sources.
type SourceResult struct {
	Source    string       `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
	Count     int          `json:"count"`
	Items     []ThreatItem `json:"items"`
	Error     string       `json:"error,omitempty"`
}

// SourceSummary is the per-feed entry in an AggregateSummary.
type SourceSummary struct {
	Name   string       `json:"name"`
	Status SourceStatus `json:"status"`
	Count  int          `json:"count"`
}

// AggregateSummary rolls up one aggregation cycle. It is computed purely from
// the current cycle's SourceResult set; no cross-cycle history or dedup.
type AggregateSummary struct {
	Timestamp    time.Time       `json:"timestamp"`
	Sources      []SourceSummary `json:"sources"`
	TotalThreats int             `json:"totalThreats"`
	HighSeverity int             `json:"highSeverity"`
}

// CacheDocument is the persisted threat cache shape. Field names are a
// compatibility contract with the external dashboard renderer.
type CacheDocument struct {
	Summary AggregateSummary `json:"summary"`
	Threats []SourceResult   `json:"threats"`
}
