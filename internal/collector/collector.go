package collector

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/config"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
	"github.com/hostsentrystack/hostsentry-agent/internal/utils"
)

// Runner executes the OS socket-listing command. Abstracted so tests can feed
// canned output without shelling out.
type Runner interface {
	Run(ctx context.Context, command string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, command string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, command, args...).Output()
}

// Collector queries the OS for current listening ports and active connections.
type Collector struct {
	command string
	args    []string
	timeout time.Duration
	runner  Runner
	logger  *slog.Logger
}

// New constructs a Collector from configuration.
func New(cfg config.CollectorConfig, runner Runner, logger *slog.Logger) *Collector {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: cfg.Timeout,
		runner:  runner,
		logger:  logger,
	}
}

// Collect produces a normalized snapshot of current network state. It fails
// only when the OS query cannot be executed; an empty socket table is a valid
// result, and individual unparseable lines are skipped.
func (c *Collector) Collect(ctx context.Context) (models.Snapshot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.runner.Run(ctx, c.command, c.args...)
	if err != nil {
		return models.Snapshot{}, utils.NewAppError("collector.Collect", "socket query failed", err)
	}

	snapshot := c.parse(string(out))
	snapshot.Timestamp = time.Now().UTC()
	return snapshot, nil
}

// parse splits socket-table output into listeners and connections. Expected
// row layout (ss -H -tunap):
//
//	proto state recvq sendq local peer [process]
func (c *Collector) parse(out string) models.Snapshot {
	var (
		connections = make([]models.Connection, 0)
		ports       = make([]models.ListeningPort, 0)
		seenPorts   = make(map[string]struct{})
	)

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			if strings.TrimSpace(line) != "" {
				c.logger.Debug("skipping unparseable socket row", slog.String("line", line))
			}
			continue
		}

		proto := strings.ToLower(fields[0])
		state := strings.ToUpper(fields[1])
		local := fields[4]
		peer := fields[5]

		if isListenerState(state, peer) {
			port := utils.PortFromAddress(local)
			key := proto + ":" + local
			if _, dup := seenPorts[key]; dup {
				continue
			}
			seenPorts[key] = struct{}{}
			ports = append(ports, models.ListeningPort{
				Protocol: proto,
				Port:     port,
				Address:  utils.HostFromAddress(local),
			})
			continue
		}

		conn := models.Connection{
			Protocol:     proto,
			State:        state,
			LocalAddress: local,
			PeerAddress:  peer,
		}
		if len(fields) > 6 {
			conn.ProcessLabel = processLabel(fields[6])
		}
		connections = append(connections, conn)
	}

	return models.Snapshot{
		Connections: connections,
		Ports:       ports,
		Stats: models.SnapshotStats{
			ConnectionCount: len(connections),
			ListenerCount:   len(ports),
		},
	}
}

// isListenerState reports whether a socket row is a local listener rather
// than an active connection. UDP sockets show UNCONN; they only count as
// listeners when the peer is the wildcard.
func isListenerState(state, peer string) bool {
	switch state {
	case "LISTEN":
		return true
	case "UNCONN":
		return strings.HasSuffix(peer, ":*") || peer == "*"
	default:
		return false
	}
}

// processLabel reduces a users:(("sshd",pid=822,fd=3)) column to sshd.
func processLabel(field string) string {
	start := strings.Index(field, "((\"")
	if start < 0 {
		return ""
	}
	rest := field[start+3:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
