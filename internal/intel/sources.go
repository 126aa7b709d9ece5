package intel

import (
	"encoding/json"
	"fmt"

	"github.com/hostsentrystack/hostsentry-agent/internal/config"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
	"github.com/hostsentrystack/hostsentry-agent/internal/utils"
)

// Feed endpoints. These are externally owned contracts; method, headers, and
// body shape must match each API's documentation.
const (
	ransomwatchEndpoint = "https://api.ransomware.live/v1/recentvictims"
	urlhausEndpoint     = "https://urlhaus-api.abuse.ch/v1/urls/recent/limit/50/"
	threatfoxEndpoint   = "https://threatfox-api.abuse.ch/api/v1/"
)

// threatfoxHighConfidence is the confidence score at or above which an IOC is
// classified high severity.
const threatfoxHighConfidence = 75

// Sources returns the configured source descriptors in a fixed order. The
// aggregator's set of feeds is exactly this list; there is no global registry.
func Sources(cfg config.FeedsConfig) []Source {
	sources := make([]Source, 0, 3)
	if cfg.Ransomwatch.Enabled {
		sources = append(sources, RansomwatchSource())
	}
	if cfg.URLhaus.Enabled {
		sources = append(sources, URLhausSource(cfg.URLhaus.AuthKey))
	}
	if cfg.ThreatFox.Enabled {
		sources = append(sources, ThreatFoxSource(cfg.ThreatFox.AuthKey))
	}
	return sources
}

// RansomwatchSource lists recently published ransomware victims. The feed
// carries no severity signal; victim items default to high.
func RansomwatchSource() Source {
	return Source{
		Name:      "ransomwatch",
		Endpoint:  ransomwatchEndpoint,
		Method:    "GET",
		Normalize: normalizeRansomwatch,
	}
}

func normalizeRansomwatch(body []byte, maxItems int) ([]models.ThreatItem, error) {
	var victims []struct {
		PostTitle  string `json:"post_title"`
		GroupName  string `json:"group_name"`
		Discovered string `json:"discovered"`
	}
	if err := json.Unmarshal(body, &victims); err != nil {
		return nil, fmt.Errorf("decode victims: %w", err)
	}

	items := make([]models.ThreatItem, 0, maxItems)
	for _, v := range victims {
		if len(items) >= maxItems {
			break
		}
		items = append(items, models.ThreatItem{
			Type:     models.ThreatItemVictim,
			Severity: models.SeverityHigh,
			Victim:   v.PostTitle,
			Group:    v.GroupName,
			Date:     utils.NormalizeFeedDate(v.Discovered),
		})
	}
	return items, nil
}

// URLhausSource lists recently observed malware distribution URLs. URLs still
// online are high severity; taken-down ones default to medium.
func URLhausSource(authKey string) Source {
	headers := map[string]string{}
	if authKey != "" {
		headers["Auth-Key"] = authKey
	}
	return Source{
		Name:      "urlhaus",
		Endpoint:  urlhausEndpoint,
		Method:    "GET",
		Headers:   headers,
		Normalize: normalizeURLhaus,
	}
}

func normalizeURLhaus(body []byte, maxItems int) ([]models.ThreatItem, error) {
	var response struct {
		QueryStatus string `json:"query_status"`
		URLs        []struct {
			URL       string `json:"url"`
			Host      string `json:"host"`
			Threat    string `json:"threat"`
			URLStatus string `json:"url_status"`
			DateAdded string `json:"date_added"`
		} `json:"urls"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode urls: %w", err)
	}
	if response.QueryStatus != "ok" {
		return nil, fmt.Errorf("urlhaus query_status %q", response.QueryStatus)
	}

	items := make([]models.ThreatItem, 0, maxItems)
	for _, u := range response.URLs {
		if len(items) >= maxItems {
			break
		}
		severity := models.SeverityMedium
		if u.URLStatus == "online" {
			severity = models.SeverityHigh
		}
		items = append(items, models.ThreatItem{
			Type:     models.ThreatItemURL,
			Severity: severity,
			URL:      u.URL,
			Host:     u.Host,
			Threat:   u.Threat,
			Date:     utils.NormalizeFeedDate(u.DateAdded),
		})
	}
	return items, nil
}

// ThreatFoxSource queries the last day of IOCs. Severity is derived from the
// feed's confidence score: >= 75 is high, anything else medium.
func ThreatFoxSource(authKey string) Source {
	headers := map[string]string{"Content-Type": "application/json"}
	if authKey != "" {
		headers["Auth-Key"] = authKey
	}
	return Source{
		Name:     "threatfox",
		Endpoint: threatfoxEndpoint,
		Method:   "POST",
		Headers:  headers,
		Body: func() ([]byte, error) {
			return json.Marshal(map[string]any{"query": "get_iocs", "days": 1})
		},
		Normalize: normalizeThreatFox,
	}
}

func normalizeThreatFox(body []byte, maxItems int) ([]models.ThreatItem, error) {
	var response struct {
		QueryStatus string `json:"query_status"`
		Data        []struct {
			IOC             string `json:"ioc"`
			IOCType         string `json:"ioc_type"`
			Malware         string `json:"malware_printable"`
			ConfidenceLevel int    `json:"confidence_level"`
			FirstSeen       string `json:"first_seen"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode iocs: %w", err)
	}
	if response.QueryStatus != "ok" {
		return nil, fmt.Errorf("threatfox query_status %q", response.QueryStatus)
	}

	items := make([]models.ThreatItem, 0, maxItems)
	for _, ioc := range response.Data {
		if len(items) >= maxItems {
			break
		}
		severity := models.SeverityMedium
		if ioc.ConfidenceLevel >= threatfoxHighConfidence {
			severity = models.SeverityHigh
		}
		items = append(items, models.ThreatItem{
			Type:     models.ThreatItemIOC,
			Severity: severity,
			IOC:      ioc.IOC,
			IOCType:  ioc.IOCType,
			Malware:  ioc.Malware,
			Date:     utils.NormalizeFeedDate(ioc.FirstSeen),
		})
	}
	return items, nil
}
