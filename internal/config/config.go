package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run the agent.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Collector CollectorConfig `yaml:"collector"`
	Detector  DetectorConfig  `yaml:"detector"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AgentConfig controls persistence paths, the ops listener, and daemon cadence.
type AgentConfig struct {
	StatePath       string        `yaml:"statePath"`
	CachePath       string        `yaml:"cachePath"`
	OpsAddress      string        `yaml:"opsAddress"`
	NetworkInterval time.Duration `yaml:"networkInterval"`
	ThreatInterval  time.Duration `yaml:"threatInterval"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// CollectorConfig controls the OS socket query.
type CollectorConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

// DetectorConfig holds the anomaly rule constants. These are the documented
// thresholds, surfaced here rather than buried in the detector.
type DetectorConfig struct {
	SpikeFactor     int   `yaml:"spikeFactor"`
	SpikeMinimum    int   `yaml:"spikeMinimum"`
	SuspiciousPorts []int `yaml:"suspiciousPorts"`
}

// AlertsConfig controls the outbound webhook channel. An empty URL degrades
// dispatch to local logging.
type AlertsConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// FeedsConfig controls the threat-intelligence fetchers.
type FeedsConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxItems    int           `yaml:"maxItems"`
	Ransomwatch FeedToggle    `yaml:"ransomwatch"`
	URLhaus     FeedToggle    `yaml:"urlhaus"`
	ThreatFox   FeedToggle    `yaml:"threatfox"`
}

// FeedToggle enables one source and carries its optional auth key.
type FeedToggle struct {
	Enabled bool   `yaml:"enabled"`
	AuthKey string `yaml:"authKey"`
}

// MirrorConfig controls the optional Valkey mirror of the threat cache.
type MirrorConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Key          string        `yaml:"key"`
	TTL          time.Duration `yaml:"ttl"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultSuspiciousPorts lists peer ports commonly used by reverse shells and
// remote-access backdoors.
var DefaultSuspiciousPorts = []int{1080, 4444, 5554, 6666, 6667, 9001, 31337}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HOSTSENTRY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalise(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			StatePath:       "data/network_state.json",
			CachePath:       "data/threat_cache.json",
			OpsAddress:      ":9753",
			GracefulTimeout: 10 * time.Second,
		},
		Collector: CollectorConfig{
			Command: "ss",
			Args:    []string{"-H", "-tunap"},
			Timeout: 10 * time.Second,
		},
		Detector: DetectorConfig{
			SpikeFactor:     2,
			SpikeMinimum:    50,
			SuspiciousPorts: append([]int(nil), DefaultSuspiciousPorts...),
		},
		Alerts: AlertsConfig{Timeout: 10 * time.Second},
		Feeds: FeedsConfig{
			Timeout:     15 * time.Second,
			MaxItems:    10,
			Ransomwatch: FeedToggle{Enabled: true},
			URLhaus:     FeedToggle{Enabled: true},
			ThreatFox:   FeedToggle{Enabled: true},
		},
		Mirror: MirrorConfig{
			Key:          "hostsentry:threat_cache",
			TTL:          30 * time.Minute,
			DialTimeout:  2 * time.Second,
			WriteTimeout: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func normalise(cfg *Config) {
	if cfg.Detector.SpikeFactor <= 0 {
		cfg.Detector.SpikeFactor = 2
	}
	if cfg.Detector.SpikeMinimum <= 0 {
		cfg.Detector.SpikeMinimum = 50
	}
	if cfg.Feeds.MaxItems <= 0 {
		cfg.Feeds.MaxItems = 10
	}
	if cfg.Feeds.Timeout <= 0 {
		cfg.Feeds.Timeout = 15 * time.Second
	}
	if cfg.Alerts.Timeout <= 0 {
		cfg.Alerts.Timeout = 10 * time.Second
	}
	if cfg.Collector.Timeout <= 0 {
		cfg.Collector.Timeout = 10 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOSTSENTRY_STATE_PATH"); v != "" {
		cfg.Agent.StatePath = v
	}
	if v := os.Getenv("HOSTSENTRY_CACHE_PATH"); v != "" {
		cfg.Agent.CachePath = v
	}
	if v := os.Getenv("HOSTSENTRY_OPS_ADDRESS"); v != "" {
		cfg.Agent.OpsAddress = v
	}
	if v := os.Getenv("HOSTSENTRY_NETWORK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.NetworkInterval = d
		}
	}
	if v := os.Getenv("HOSTSENTRY_THREAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.ThreatInterval = d
		}
	}
	if v := os.Getenv("HOSTSENTRY_SPIKE_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detector.SpikeFactor = n
		}
	}
	if v := os.Getenv("HOSTSENTRY_SPIKE_MINIMUM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detector.SpikeMinimum = n
		}
	}
	if v := os.Getenv("HOSTSENTRY_SUSPICIOUS_PORTS"); v != "" {
		ports := make([]int, 0)
		for _, field := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(field)); err == nil {
				ports = append(ports, n)
			}
		}
		if len(ports) > 0 {
			cfg.Detector.SuspiciousPorts = ports
		}
	}
	if v := os.Getenv("HOSTSENTRY_WEBHOOK_URL"); v != "" {
		cfg.Alerts.WebhookURL = v
	}
	if v := os.Getenv("HOSTSENTRY_FEED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feeds.Timeout = d
		}
	}
	if v := os.Getenv("HOSTSENTRY_FEED_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feeds.MaxItems = n
		}
	}
	if v := os.Getenv("HOSTSENTRY_URLHAUS_AUTH_KEY"); v != "" {
		cfg.Feeds.URLhaus.AuthKey = v
	}
	if v := os.Getenv("HOSTSENTRY_THREATFOX_AUTH_KEY"); v != "" {
		cfg.Feeds.ThreatFox.AuthKey = v
	}
	if v := os.Getenv("HOSTSENTRY_MIRROR_ADDR"); v != "" {
		cfg.Mirror.Addr = v
	}
	if v := os.Getenv("HOSTSENTRY_MIRROR_ENABLED"); v != "" {
		cfg.Mirror.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("HOSTSENTRY_MIRROR_PASSWORD"); v != "" {
		cfg.Mirror.Password = v
	}
	if v := os.Getenv("HOSTSENTRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HOSTSENTRY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
