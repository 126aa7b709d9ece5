package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hostsentrystack/hostsentry-agent/internal/agent"
	"github.com/hostsentrystack/hostsentry-agent/internal/alert"
	"github.com/hostsentrystack/hostsentry-agent/internal/api"
	"github.com/hostsentrystack/hostsentry-agent/internal/collector"
	"github.com/hostsentrystack/hostsentry-agent/internal/config"
	"github.com/hostsentrystack/hostsentry-agent/internal/detector"
	"github.com/hostsentrystack/hostsentry-agent/internal/intel"
	"github.com/hostsentrystack/hostsentry-agent/internal/metrics"
	"github.com/hostsentrystack/hostsentry-agent/internal/store"
	"github.com/hostsentrystack/hostsentry-agent/internal/utils"
)

func main() {
	var (
		configPath string
		cycle      string
		daemon     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&cycle, "cycle", "all", "Cycle to run once: network, threat, or all")
	flag.BoolVar(&daemon, "daemon", false, "Run cycles on internal timers and serve ops endpoints")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	documents := store.New(cfg.Agent.StatePath, cfg.Agent.CachePath, logger)

	feedClient := intel.NewClient(cfg.Feeds.Timeout, cfg.Feeds.MaxItems, logger)
	fetchers := make([]intel.Fetcher, 0)
	for _, src := range intel.Sources(cfg.Feeds) {
		fetchers = append(fetchers, feedClient.Bind(src))
	}

	var publisher agent.CachePublisher
	if cfg.Mirror.Enabled && cfg.Mirror.Addr != "" {
		mirror, err := store.NewMirror(cfg.Mirror)
		if err != nil {
			logger.Warn("cache mirror unavailable", slog.Any("error", err))
		} else {
			publisher = mirror
		}
	}

	host := agent.New(
		logger,
		collector.New(cfg.Collector, nil, logger),
		detector.New(cfg.Detector, logger),
		alert.NewDispatcher(cfg.Alerts, logger),
		documents,
		intel.NewAggregator(fetchers, documents, logger),
		publisher,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !daemon {
		runOnce(ctx, host, cycle, logger)
		host.Drain()
		return
	}

	runDaemon(ctx, stop, host, documents, cfg, logger)
}

// runOnce executes the requested cycle(s) and exits; cadence belongs to
// whatever invoked the process.
func runOnce(ctx context.Context, host *agent.Agent, cycle string, logger *slog.Logger) {
	switch cycle {
	case "network":
		if err := host.RunNetworkCycle(ctx); err != nil {
			logger.Error("network cycle failed", slog.Any("error", err))
		}
	case "threat":
		if err := host.RunThreatCycle(ctx); err != nil {
			logger.Error("threat cycle failed", slog.Any("error", err))
		}
	case "all":
		if err := host.RunNetworkCycle(ctx); err != nil {
			logger.Error("network cycle failed", slog.Any("error", err))
		}
		if err := host.RunThreatCycle(ctx); err != nil {
			logger.Error("threat cycle failed", slog.Any("error", err))
		}
	default:
		logger.Error("unknown cycle", slog.String("cycle", cycle))
		os.Exit(2)
	}
}

// runDaemon keeps the process alive with per-kind tickers and the ops server.
// The cycles themselves stay single-shot; the tickers are only cadence.
func runDaemon(ctx context.Context, stop context.CancelFunc, host *agent.Agent, documents *store.Store, cfg *config.Config, logger *slog.Logger) {
	networkInterval := cfg.Agent.NetworkInterval
	if networkInterval <= 0 {
		networkInterval = time.Minute
	}
	threatInterval := cfg.Agent.ThreatInterval
	if threatInterval <= 0 {
		threatInterval = 30 * time.Minute
	}

	logger.Info("starting hostsentry agent",
		slog.Duration("networkInterval", networkInterval),
		slog.Duration("threatInterval", threatInterval),
		slog.String("opsAddress", cfg.Agent.OpsAddress))

	var opsServer *api.Server
	if cfg.Agent.OpsAddress != "" {
		opsServer = api.NewServer(cfg.Agent.OpsAddress, documents, logger)
		go func() {
			if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(networkInterval)
		defer ticker.Stop()
		_ = host.RunNetworkCycle(ctx)
		for {
			select {
			case <-ticker.C:
				_ = host.RunNetworkCycle(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(threatInterval)
		defer ticker.Stop()
		_ = host.RunThreatCycle(ctx)
		for {
			select {
			case <-ticker.C:
				_ = host.RunThreatCycle(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Agent.GracefulTimeout)
		if err := opsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("ops server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	// Blocks until any cycle finishing its write and all in-flight alert
	// deliveries have settled.
	host.Drain()
	logger.Info("hostsentry agent stopped")
}
