package intel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

// CacheWriter persists the combined aggregation output.
type CacheWriter interface {
	SaveCache(doc models.CacheDocument) error
}

// Aggregator runs all configured fetchers concurrently, merges their output
// with per-source status into a summary, and persists the combined result.
type Aggregator struct {
	fetchers []Fetcher
	store    CacheWriter
	logger   *slog.Logger
}

// NewAggregator constructs an Aggregator over an explicit ordered fetcher list.
func NewAggregator(fetchers []Fetcher, store CacheWriter, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{fetchers: fetchers, store: store, logger: logger}
}

// Run executes one aggregation cycle. Every fetcher settles (success or
// failure) before the summary is built; a slow or failing source never blocks
// or fails the cycle for the others. The returned error is a persist failure
// only; the in-memory document is valid either way.
func (a *Aggregator) Run(ctx context.Context) (models.CacheDocument, error) {
	results := make([]models.SourceResult, len(a.fetchers))

	var wg sync.WaitGroup
	for i, fetcher := range a.fetchers {
		wg.Add(1)
		go func(slot int, f Fetcher) {
			defer wg.Done()
			results[slot] = f.Fetch(ctx)
		}(i, fetcher)
	}
	wg.Wait()

	doc := models.CacheDocument{
		Summary: buildSummary(results, time.Now().UTC()),
		Threats: results,
	}

	a.logger.Info("aggregation cycle complete",
		slog.Int("sources", len(results)),
		slog.Int("totalThreats", doc.Summary.TotalThreats),
		slog.Int("highSeverity", doc.Summary.HighSeverity))

	if a.store == nil {
		return doc, nil
	}
	if err := a.store.SaveCache(doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// buildSummary rolls the cycle's results into the persisted summary shape.
// It is computed purely from the current cycle; no history, no dedup.
func buildSummary(results []models.SourceResult, now time.Time) models.AggregateSummary {
	summary := models.AggregateSummary{
		Timestamp: now,
		Sources:   make([]models.SourceSummary, 0, len(results)),
	}

	for _, result := range results {
		status := models.SourceOK
		if result.Error != "" {
			status = models.SourceError
		}
		summary.Sources = append(summary.Sources, models.SourceSummary{
			Name:   result.Source,
			Status: status,
			Count:  result.Count,
		})
		summary.TotalThreats += len(result.Items)
		for _, item := range result.Items {
			if item.Severity == models.SeverityHigh {
				summary.HighSeverity++
			}
		}
	}

	return summary
}
