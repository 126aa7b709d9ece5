package utils

import (
	"strings"
	"time"
)

// feedDateLayouts covers the timestamp formats the upstream feeds publish.
var feedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 UTC",
	"2006-01-02",
}

// NormalizeFeedDate parses a feed-published timestamp and re-renders it as
// RFC3339. Unparseable or empty input is returned trimmed as-is; feed dates
// are display data, not control flow.
func NormalizeFeedDate(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return trimmed
}
