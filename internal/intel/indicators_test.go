package intel

import (
	"testing"

	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

func TestBuildIndicatorSet(t *testing.T) {
	doc := models.CacheDocument{
		Threats: []models.SourceResult{
			{
				Source: "urlhaus",
				Items: []models.ThreatItem{
					{Type: models.ThreatItemURL, Severity: models.SeverityHigh, Host: "Bad.Example"},
				},
			},
			{
				Source: "threatfox",
				Items: []models.ThreatItem{
					{Type: models.ThreatItemIOC, Severity: models.SeverityHigh, IOC: "203.0.113.5:4444", IOCType: "ip:port"},
					{Type: models.ThreatItemIOC, Severity: models.SeverityMedium, IOC: "evil.example", IOCType: "domain"},
					{Type: models.ThreatItemIOC, Severity: models.SeverityHigh, IOC: "d41d8cd98f00b204e9800998ecf8427e", IOCType: "md5_hash"},
				},
			},
			{
				Source: "ransomwatch",
				Items: []models.ThreatItem{
					{Type: models.ThreatItemVictim, Severity: models.SeverityHigh, Victim: "Acme Corp"},
				},
			},
		},
	}

	set := BuildIndicatorSet(doc)
	if set == nil {
		t.Fatal("expected a non-nil indicator set")
	}
	if set.Size() != 3 {
		t.Fatalf("expected 3 indexed values (hash and victim items skipped), got %d", set.Size())
	}

	for _, value := range []string{"bad.example", "203.0.113.5", "evil.example"} {
		if !set.MayContain(value) {
			t.Fatalf("expected %q to be indexed", value)
		}
	}
	if !set.MayContain("BAD.EXAMPLE") {
		t.Fatal("lookups must be case-insensitive")
	}
}

func TestBuildIndicatorSetEmptyDocument(t *testing.T) {
	if set := BuildIndicatorSet(models.CacheDocument{}); set != nil {
		t.Fatalf("expected nil set for empty document, got size %d", set.Size())
	}

	victimsOnly := models.CacheDocument{
		Threats: []models.SourceResult{
			{Source: "ransomwatch", Items: []models.ThreatItem{
				{Type: models.ThreatItemVictim, Severity: models.SeverityHigh, Victim: "Acme Corp"},
			}},
		},
	}
	if set := BuildIndicatorSet(victimsOnly); set != nil {
		t.Fatal("victim items carry no network indicator; set should be nil")
	}
}

func TestNilIndicatorSetNeverMatches(t *testing.T) {
	var set *IndicatorSet
	if set.MayContain("anything") {
		t.Fatal("nil set must report no matches")
	}
	if set.Size() != 0 {
		t.Fatal("nil set has size 0")
	}
}
