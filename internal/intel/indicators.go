package intel

import (
	"strings"

	"github.com/willf/bloom"

	"github.com/hostsentrystack/hostsentry-agent/internal/models"
	"github.com/hostsentrystack/hostsentry-agent/internal/utils"
)

// indicatorFalsePositiveRate is the bloom filter's target error rate. Hits
// are treated as candidates for operator review, so ~1% noise is acceptable.
const indicatorFalsePositiveRate = 0.01

// IndicatorSet is a probabilistic membership index over the host and IOC
// values in a threat cache document. It backs the detector's intel-match
// rule: cheap per-connection lookups, occasional false positives, never
// false negatives for indexed values.
type IndicatorSet struct {
	filter *bloom.BloomFilter
	size   int
}

// BuildIndicatorSet indexes every network-shaped indicator in the document:
// URL hosts and IP/domain IOCs. Hash-type IOCs have no connection-level
// counterpart and are skipped. Returns nil when nothing is indexable, which
// disables the detector rule.
func BuildIndicatorSet(doc models.CacheDocument) *IndicatorSet {
	values := make([]string, 0)
	for _, result := range doc.Threats {
		for _, item := range result.Items {
			for _, v := range indicatorValues(item) {
				if v != "" {
					values = append(values, v)
				}
			}
		}
	}
	if len(values) == 0 {
		return nil
	}

	filter := bloom.NewWithEstimates(uint(len(values)), indicatorFalsePositiveRate)
	for _, v := range values {
		filter.AddString(v)
	}
	return &IndicatorSet{filter: filter, size: len(values)}
}

// MayContain reports whether value was probably indexed.
func (s *IndicatorSet) MayContain(value string) bool {
	if s == nil || s.filter == nil {
		return false
	}
	return s.filter.TestString(strings.ToLower(strings.TrimSpace(value)))
}

// Size returns the number of indexed values.
func (s *IndicatorSet) Size() int {
	if s == nil {
		return 0
	}
	return s.size
}

func indicatorValues(item models.ThreatItem) []string {
	switch item.Type {
	case models.ThreatItemURL:
		return []string{normalizeIndicator(item.Host)}
	case models.ThreatItemIOC:
		switch item.IOCType {
		case "ip:port":
			return []string{normalizeIndicator(utils.HostFromAddress(item.IOC))}
		case "domain", "ip":
			return []string{normalizeIndicator(item.IOC)}
		default:
			return nil
		}
	default:
		return nil
	}
}

func normalizeIndicator(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
