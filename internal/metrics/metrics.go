package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels cycles and deliveries that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels cycles and deliveries that failed.
	OutcomeError = "error"
	// OutcomeSkipped labels cycles dropped because the prior one was still running.
	OutcomeSkipped = "skipped"
)

var (
	networkCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostsentry",
			Name:      "network_cycles_total",
			Help:      "Total snapshot/detection cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	threatCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostsentry",
			Name:      "threat_cycles_total",
			Help:      "Total feed aggregation cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostsentry",
			Name:      "anomalies_total",
			Help:      "Anomaly events emitted, partitioned by rule type.",
		},
		[]string{"type"},
	)

	feedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostsentry",
			Name:      "feed_fetches_total",
			Help:      "Threat feed fetches, partitioned by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	feedFetchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hostsentry",
			Name:      "feed_fetch_seconds",
			Help:      "Threat feed fetch latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
	)

	alertDispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostsentry",
			Name:      "alert_dispatches_total",
			Help:      "Alert webhook deliveries, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches hostsentry collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		networkCyclesTotal,
		threatCyclesTotal,
		anomaliesTotal,
		feedFetchesTotal,
		feedFetchSeconds,
		alertDispatchesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveNetworkCycle records one snapshot/detection cycle outcome.
func ObserveNetworkCycle(outcome string) {
	networkCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveThreatCycle records one feed aggregation cycle outcome.
func ObserveThreatCycle(outcome string) {
	threatCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveAnomaly records one emitted anomaly event.
func ObserveAnomaly(anomalyType string) {
	anomaliesTotal.WithLabelValues(anomalyType).Inc()
}

// ObserveFeedFetch records a fetch duration and outcome for one source.
func ObserveFeedFetch(source string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	feedFetchesTotal.WithLabelValues(source, label).Inc()
	if duration < 0 {
		duration = 0
	}
	feedFetchSeconds.Observe(duration.Seconds())
}

// ObserveDispatch records one alert delivery attempt.
func ObserveDispatch(outcome string) {
	alertDispatchesTotal.WithLabelValues(outcome).Inc()
}
