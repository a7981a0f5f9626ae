// Package config holds the cluster-wide constants every node must agree on.
//
// These are not per-node settings (host and port — those are command-line
// arguments of cmd/server). They are wire-contract constants: the virtual
// node replica factor in particular must be identical across the cluster,
// because RoutingTable.Serialize ships only physical nodes and every
// receiver reconstructs virtual nodes locally from (host, port, i).
package config

import "time"

const (
	// GossipFanout is the number of peers gossiped to per round.
	GossipFanout = 3

	// HeartbeatInterval is how often a node bumps its own heartbeat counter.
	HeartbeatInterval = 1 * time.Second

	// GossipInterval is how often a node pushes its state to GossipFanout peers.
	GossipInterval = 2 * time.Second

	// FailureTimeout is the soft-suspect threshold. It does not drive routing
	// changes; it is surfaced for observability only (spec §4.3, §9).
	FailureTimeout = 10 * time.Second

	// FailureHardDead is the threshold past which a peer is evicted from the
	// routing table and its gossip bookkeeping is garbage-collected.
	FailureHardDead = 15 * time.Second

	// FailureDetectInterval is how often the failure detector loop runs.
	// The source had two disagreeing gossip.py variants here (hardcoded 3s vs
	// configurable); this resolves in favor of configurable (spec §9).
	FailureDetectInterval = 3 * time.Second

	// MigrationInterval is how often the data migrator checks for a routing
	// version change.
	MigrationInterval = 5 * time.Second

	// VirtualNodeReplicas is the number of virtual nodes per physical node.
	VirtualNodeReplicas = 100

	// GossipSendTimeout bounds a single outbound gossip POST.
	GossipSendTimeout = 1 * time.Second

	// BootstrapGetTimeout bounds the GET against the bootstrap node's
	// /routing_table during bootstrap_join.
	BootstrapGetTimeout = 2 * time.Second
)

// BootstrapNode is the single hardcoded host:port new nodes join through.
// The bootstrap node itself is just an ordinary node started first.
var BootstrapNode = "127.0.0.1:8000"
