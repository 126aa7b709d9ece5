package intel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostsentrystack/hostsentry-agent/internal/config"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

func TestSourcesHonourToggles(t *testing.T) {
	cfg := config.FeedsConfig{
		Ransomwatch: config.FeedToggle{Enabled: true},
		URLhaus:     config.FeedToggle{Enabled: false},
		ThreatFox:   config.FeedToggle{Enabled: true},
	}

	sources := Sources(cfg)
	require.Len(t, sources, 2)
	assert.Equal(t, "ransomwatch", sources[0].Name)
	assert.Equal(t, "threatfox", sources[1].Name)
}

func TestNormalizeRansomwatch(t *testing.T) {
	body := []byte(`[
		{"post_title": "Acme Corp", "group_name": "lockbit3", "discovered": "2026-08-27 14:02:11"},
		{"post_title": "Globex", "group_name": "play", "discovered": "2026-08-26 09:15:00"}
	]`)

	items, err := normalizeRansomwatch(body, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, models.ThreatItemVictim, items[0].Type)
	assert.Equal(t, models.SeverityHigh, items[0].Severity, "victim items default to high")
	assert.Equal(t, "Acme Corp", items[0].Victim)
	assert.Equal(t, "lockbit3", items[0].Group)
	assert.Equal(t, "2026-08-27T14:02:11Z", items[0].Date)
}

func TestNormalizeURLhaus(t *testing.T) {
	body := []byte(`{
		"query_status": "ok",
		"urls": [
			{"url": "http://bad.example/x.exe", "host": "bad.example", "threat": "malware_download", "url_status": "online", "date_added": "2026-08-28 01:00:00 UTC"},
			{"url": "http://down.example/y.exe", "host": "down.example", "threat": "malware_download", "url_status": "offline", "date_added": "2026-08-28 02:00:00 UTC"}
		]
	}`)

	items, err := normalizeURLhaus(body, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, models.SeverityHigh, items[0].Severity, "online URLs are high")
	assert.Equal(t, models.SeverityMedium, items[1].Severity, "default severity is medium")
	assert.Equal(t, models.ThreatItemURL, items[0].Type)
	assert.Equal(t, "bad.example", items[0].Host)
}

func TestNormalizeURLhausRejectsBadStatus(t *testing.T) {
	_, err := normalizeURLhaus([]byte(`{"query_status": "no_results", "urls": []}`), 10)
	assert.Error(t, err)
}

func TestNormalizeThreatFoxConfidenceThreshold(t *testing.T) {
	body := []byte(`{
		"query_status": "ok",
		"data": [
			{"ioc": "203.0.113.5:4444", "ioc_type": "ip:port", "malware_printable": "Cobalt Strike", "confidence_level": 75, "first_seen": "2026-08-28 07:30:00 UTC"},
			{"ioc": "evil.example", "ioc_type": "domain", "malware_printable": "AgentTesla", "confidence_level": 74, "first_seen": "2026-08-28 08:00:00 UTC"},
			{"ioc": "d41d8cd98f00b204e9800998ecf8427e", "ioc_type": "md5_hash", "malware_printable": "Unknown", "confidence_level": 100, "first_seen": "2026-08-28 08:30:00 UTC"}
		]
	}`)

	items, err := normalizeThreatFox(body, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, models.SeverityHigh, items[0].Severity, "confidence 75 maps to high")
	assert.Equal(t, models.SeverityMedium, items[1].Severity, "confidence 74 maps to medium")
	assert.Equal(t, models.ThreatItemIOC, items[0].Type)
	assert.Equal(t, "ip:port", items[0].IOCType)
}

func TestNormalizersTruncateToCap(t *testing.T) {
	body := []byte(`[
		{"post_title": "a"}, {"post_title": "b"}, {"post_title": "c"},
		{"post_title": "d"}, {"post_title": "e"}
	]`)

	items, err := normalizeRansomwatch(body, 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Victim, "cap keeps the most recent, which feeds list first")
}

func TestNormalizersAlwaysAssignSeverity(t *testing.T) {
	ransomBody := []byte(`[{"post_title": "x"}]`)
	urlBody := []byte(`{"query_status": "ok", "urls": [{"url": "http://a/b"}]}`)
	foxBody := []byte(`{"query_status": "ok", "data": [{"ioc": "1.2.3.4", "ioc_type": "ip"}]}`)

	for name, run := range map[string]func() ([]models.ThreatItem, error){
		"ransomwatch": func() ([]models.ThreatItem, error) { return normalizeRansomwatch(ransomBody, 5) },
		"urlhaus":     func() ([]models.ThreatItem, error) { return normalizeURLhaus(urlBody, 5) },
		"threatfox":   func() ([]models.ThreatItem, error) { return normalizeThreatFox(foxBody, 5) },
	} {
		items, err := run()
		require.NoError(t, err, name)
		require.NotEmpty(t, items, name)
		for _, item := range items {
			assert.NotEmpty(t, item.Severity, "%s item missing severity", name)
		}
	}
}
