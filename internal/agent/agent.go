package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/detector"
	"github.com/hostsentrystack/hostsentry-agent/internal/intel"
	"github.com/hostsentrystack/hostsentry-agent/internal/metrics"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
	"github.com/hostsentrystack/hostsentry-agent/internal/utils"
)

// SnapshotCollector produces the current network state.
type SnapshotCollector interface {
	Collect(ctx context.Context) (models.Snapshot, error)
}

// AnomalyDetector compares consecutive snapshots.
type AnomalyDetector interface {
	Detect(current models.Snapshot, previous *models.Snapshot, intel detector.IndicatorMatcher) []models.AnomalyEvent
}

// EventDispatcher delivers anomaly events best-effort.
type EventDispatcher interface {
	Dispatch(event models.AnomalyEvent)
	Wait()
}

// StateStore persists the snapshot baseline and reads the threat cache.
type StateStore interface {
	LoadState() *models.Snapshot
	SaveState(snapshot models.Snapshot) error
	LoadCache() *models.CacheDocument
}

// ThreatAggregator runs one feed aggregation cycle.
type ThreatAggregator interface {
	Run(ctx context.Context) (models.CacheDocument, error)
}

// CachePublisher mirrors the serialized cache to a secondary consumer.
type CachePublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Agent exposes the two single-cycle entry points. Cadence belongs to the
// caller (cron, a timer in cmd, an orchestrator); the agent only guarantees
// that cycles of the same kind never overlap.
type Agent struct {
	logger     *slog.Logger
	collector  SnapshotCollector
	detector   AnomalyDetector
	dispatcher EventDispatcher
	store      StateStore
	aggregator ThreatAggregator
	publisher  CachePublisher

	networkMu sync.Mutex
	threatMu  sync.Mutex

	networkLatency *utils.LatencyTracker
	threatLatency  *utils.LatencyTracker
}

// New constructs the agent facade. publisher may be nil.
func New(
	logger *slog.Logger,
	collector SnapshotCollector,
	det AnomalyDetector,
	dispatcher EventDispatcher,
	store StateStore,
	aggregator ThreatAggregator,
	publisher CachePublisher,
) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		logger:         logger,
		collector:      collector,
		detector:       det,
		dispatcher:     dispatcher,
		store:          store,
		aggregator:     aggregator,
		publisher:      publisher,
		networkLatency: utils.NewLatencyTracker(256),
		threatLatency:  utils.NewLatencyTracker(256),
	}
}

// RunNetworkCycle executes one collection -> detection -> dispatch ->
// persistence pass, strictly in that order: persistence comes last so a crash
// mid-cycle still leaves the previous valid baseline on disk. A cycle already
// in progress causes a skip, not a queue.
func (a *Agent) RunNetworkCycle(ctx context.Context) error {
	if !a.networkMu.TryLock() {
		a.logger.Warn("network cycle already running, skipping")
		metrics.ObserveNetworkCycle(metrics.OutcomeSkipped)
		return nil
	}
	defer a.networkMu.Unlock()

	start := time.Now()

	current, err := a.collector.Collect(ctx)
	if err != nil {
		metrics.ObserveNetworkCycle(metrics.OutcomeError)
		a.logger.Error("collection failed, cycle abandoned", slog.Any("error", err))
		return err
	}

	previous := a.store.LoadState()

	var matcher detector.IndicatorMatcher
	if doc := a.store.LoadCache(); doc != nil {
		if set := intel.BuildIndicatorSet(*doc); set != nil {
			matcher = set
			a.logger.Debug("indicator set loaded", slog.Int("indicators", set.Size()))
		}
	}

	events := a.detector.Detect(current, previous, matcher)
	for _, event := range events {
		metrics.ObserveAnomaly(string(event.Type))
		a.logger.Info("anomaly detected",
			slog.String("type", string(event.Type)),
			slog.String("severity", string(event.Severity)))
		a.dispatcher.Dispatch(event)
	}

	saveErr := a.store.SaveState(current)
	if saveErr != nil {
		// Events already dispatched; only the next cycle's baseline is stale.
		metrics.ObserveNetworkCycle(metrics.OutcomeError)
		a.logger.Error("snapshot persist failed, next baseline stale", slog.Any("error", saveErr))
	} else {
		metrics.ObserveNetworkCycle(metrics.OutcomeSuccess)
	}

	duration := time.Since(start)
	a.networkLatency.Observe(duration)
	a.logger.Info("network cycle complete",
		slog.Int("connections", current.Stats.ConnectionCount),
		slog.Int("listeners", current.Stats.ListenerCount),
		slog.Int("anomalies", len(events)),
		slog.Duration("duration", duration))
	a.logCycleLatency("network", a.networkLatency)

	return saveErr
}

// RunThreatCycle executes one feed aggregation pass and mirrors the outcome
// when a publisher is configured.
func (a *Agent) RunThreatCycle(ctx context.Context) error {
	if !a.threatMu.TryLock() {
		a.logger.Warn("threat cycle already running, skipping")
		metrics.ObserveThreatCycle(metrics.OutcomeSkipped)
		return nil
	}
	defer a.threatMu.Unlock()

	start := time.Now()

	doc, err := a.aggregator.Run(ctx)
	if err != nil {
		metrics.ObserveThreatCycle(metrics.OutcomeError)
		a.logger.Error("threat cache persist failed, consumers see stale data", slog.Any("error", err))
	} else {
		metrics.ObserveThreatCycle(metrics.OutcomeSuccess)
	}

	if a.publisher != nil {
		if payload, marshalErr := json.Marshal(doc); marshalErr == nil {
			if pubErr := a.publisher.Publish(ctx, payload); pubErr != nil {
				a.logger.Warn("cache mirror publish failed", slog.Any("error", pubErr))
			}
		} else {
			a.logger.Warn("cache mirror publish skipped, document not serializable", slog.Any("error", marshalErr))
		}
	}

	duration := time.Since(start)
	a.threatLatency.Observe(duration)
	a.logCycleLatency("threat", a.threatLatency)

	return err
}

// Drain blocks until any in-flight cycle finishes its write and all
// fire-and-forget alert deliveries have settled, so a stopping process never
// abandons work already started.
func (a *Agent) Drain() {
	awaitIdle(&a.networkMu)
	awaitIdle(&a.threatMu)
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
}

// awaitIdle blocks until the cycle holding mu releases it.
func awaitIdle(mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
}

func (a *Agent) logCycleLatency(kind string, tracker *utils.LatencyTracker) {
	if count := tracker.Count(); count >= 20 && count%20 == 0 {
		a.logger.Info("cycle latency",
			slog.String("kind", kind),
			slog.Duration("p95", tracker.Percentile(95)),
			slog.Int("samples", count))
	}
}
