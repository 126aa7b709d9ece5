package models

import "time"

// Snapshot is a point-in-time record of host network state. It is immutable
// once built: the current cycle's snapshot is persisted and becomes the
// read-only baseline for the next cycle.
type Snapshot struct {
	Timestamp   time.Time       `json:"timestamp"`
	Connections []Connection    `json:"connections"`
	Ports       []ListeningPort `json:"ports"`
	Stats       SnapshotStats   `json:"stats"`
}

// Connection is one active socket pairing as reported by the OS. It has no
// identity across cycles; only aggregate counts are compared over time.
type Connection struct {
	Protocol     string `json:"protocol"`
	State        string `json:"state"`
	LocalAddress string `json:"localAddress"`
	PeerAddress  string `json:"peerAddress"`
	ProcessLabel string `json:"processLabel,omitempty"`
}

// ListeningPort is an open local listener. Novelty detection keys on Port
// alone; a second protocol appearing on an already-seen port is not novel.
type ListeningPort struct {
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Address  string `json:"address"`
}

// SnapshotStats carries per-cycle aggregate counts.
type SnapshotStats struct {
	ConnectionCount int `json:"connectionCount"`
	ListenerCount   int `json:"listenerCount"`
}

// PortNumbers returns the set of listener port numbers in the snapshot.
func (s *Snapshot) PortNumbers() map[int]struct{} {
	set := make(map[int]struct{}, len(s.Ports))
	for _, p := range s.Ports {
		set[p.Port] = struct{}{}
	}
	return set
}
