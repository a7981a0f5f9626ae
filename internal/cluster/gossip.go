package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"distributed-kvstore/internal/config"
)

// GossipManager runs the three cooperating loops that keep a node's
// heartbeat bookkeeping and RoutingTable eventually consistent across the
// cluster: a heartbeat loop, a fanout gossip loop, and a failure detector,
// plus the inbound receive_gossip handler.
//
// One mutex guards both the gossip maps (heartbeat_map, last_seen,
// status_map) and RoutingTable mutation, whether that mutation originates
// from gossip or from a local /join — this is what prevents a concurrent
// ReplaceWith from interleaving with AddNode (spec §5).
type GossipManager struct {
	mu sync.Mutex

	selfNodeID   string
	routingTable *RoutingTable

	heartbeatMap map[string]uint64
	lastSeen     map[string]time.Time
	statusMap    map[string]string // "alive" | "dead"

	httpClient *http.Client
	running    bool
	stop       chan struct{}
}

const (
	statusAlive = "alive"
	statusDead  = "dead"
)

// NewGossipManager creates a GossipManager seeded with only the self node,
// matching original_source/gossip.py's __init__.
func NewGossipManager(selfNodeID string, rt *RoutingTable) *GossipManager {
	return &GossipManager{
		selfNodeID:   selfNodeID,
		routingTable: rt,
		heartbeatMap: map[string]uint64{selfNodeID: 0},
		lastSeen:     map[string]time.Time{selfNodeID: time.Now()},
		statusMap:    map[string]string{selfNodeID: statusAlive},
		httpClient:   &http.Client{Timeout: config.GossipSendTimeout},
		stop:         make(chan struct{}),
	}
}

// Start launches the three background loops. Safe to call once.
func (g *GossipManager) Start() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	go g.heartbeatLoop()
	go g.gossipLoop()
	go g.failureDetectorLoop()
}

// Stop halts all loops; loops check the running flag between iterations.
func (g *GossipManager) Stop() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	close(g.stop)
}

func (g *GossipManager) isRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

////////////////////////////////////////////////////////////////////////////////
// HEARTBEAT LOOP
////////////////////////////////////////////////////////////////////////////////

func (g *GossipManager) heartbeatLoop() {
	ticker := time.NewTicker(config.HeartbeatInterval)
	defer ticker.Stop()
	for g.isRunning() {
		select {
		case <-ticker.C:
			g.mu.Lock()
			g.heartbeatMap[g.selfNodeID]++
			g.lastSeen[g.selfNodeID] = time.Now()
			g.mu.Unlock()
		case <-g.stop:
			return
		}
	}
}

////////////////////////////////////////////////////////////////////////////////
// GOSSIP LOOP
////////////////////////////////////////////////////////////////////////////////

// GossipPayload is the wire format POSTed to /gossip.
type GossipPayload struct {
	Sender       string            `json:"sender"`
	HeartbeatMap map[string]uint64 `json:"heartbeat_map"`
	RoutingTable SerializedTable   `json:"routing_table"`
}

type gossipPayload = GossipPayload

func (g *GossipManager) gossipLoop() {
	ticker := time.NewTicker(config.GossipInterval)
	defer ticker.Stop()
	for g.isRunning() {
		select {
		case <-ticker.C:
			g.gossipOnce()
		case <-g.stop:
			return
		}
	}
}

// gossipOnce snapshots the peer set and payload under the lock, then
// transmits outside the lock (spec §4.3: "Payload is snapshotted under the
// lock; transmission is outside the lock").
func (g *GossipManager) gossipOnce() {
	targets, payload := g.snapshotForGossip()
	if len(targets) == 0 {
		return
	}
	g.sendGossip(targets, payload)
}

// ForceGossipOnce runs one gossip-loop iteration immediately, used to push a
// fresh table right after a membership change (e.g. a /join).
func (g *GossipManager) ForceGossipOnce() {
	g.gossipOnce()
}

func (g *GossipManager) snapshotForGossip() ([]string, gossipPayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	peers := make([]string, 0, len(g.routingTable.nodeMap))
	for nodeID := range g.routingTable.nodeMap {
		if nodeID != g.selfNodeID {
			peers = append(peers, nodeID)
		}
	}
	if len(peers) == 0 {
		return nil, gossipPayload{}
	}

	targets := sampleWithoutReplacement(peers, config.GossipFanout)

	hbCopy := make(map[string]uint64, len(g.heartbeatMap))
	for k, v := range g.heartbeatMap {
		hbCopy[k] = v
	}

	payload := gossipPayload{
		Sender:       g.selfNodeID,
		HeartbeatMap: hbCopy,
		RoutingTable: g.routingTable.Serialize(),
	}
	return targets, payload
}

func sampleWithoutReplacement(items []string, n int) []string {
	if n >= len(items) {
		n = len(items)
	}
	shuffled := make([]string, len(items))
	copy(shuffled, items)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

// sendGossip POSTs payload to each target. Failures are silently ignored —
// the failure detector handles unreachability, not the gossip loop itself.
func (g *GossipManager) sendGossip(targets []string, payload gossipPayload) {
	for _, target := range targets {
		_ = g.postGossip(target, payload)
	}
}

func (g *GossipManager) postGossip(nodeAddr string, payload gossipPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal gossip payload: %v", ErrTransport, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.GossipSendTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/gossip", nodeAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: peer %s returned HTTP %d", ErrTransport, nodeAddr, resp.StatusCode)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// FAILURE DETECTOR LOOP
////////////////////////////////////////////////////////////////////////////////

func (g *GossipManager) failureDetectorLoop() {
	ticker := time.NewTicker(config.FailureDetectInterval)
	defer ticker.Stop()
	for g.isRunning() {
		select {
		case <-ticker.C:
			g.detectFailures()
		case <-g.stop:
			return
		}
	}
}

// detectFailures evicts any peer whose last heartbeat is older than
// FailureHardDead: it is removed from the RoutingTable and every trace of
// it is dropped from the gossip maps (spec §9: "commits to ... full
// cleanup"). The soft FailureTimeout threshold is surfaced for
// observability only — it does not drive routing changes.
func (g *GossipManager) detectFailures() {
	now := time.Now()

	g.mu.Lock()
	var dead []string
	for nodeID, ts := range g.lastSeen {
		if nodeID == g.selfNodeID {
			continue
		}
		if g.statusMap[nodeID] == statusDead {
			continue
		}
		if now.Sub(ts) > config.FailureHardDead {
			g.statusMap[nodeID] = statusDead
			dead = append(dead, nodeID)
		}
	}

	for _, nodeID := range dead {
		host, port, err := splitNodeID(nodeID)
		if err == nil {
			g.routingTable.RemoveNode(host, port)
		}
		delete(g.heartbeatMap, nodeID)
		delete(g.lastSeen, nodeID)
		delete(g.statusMap, nodeID)
	}
	g.mu.Unlock()
}

// IsSuspect reports whether a peer has crossed the soft FailureTimeout
// threshold without yet being hard-evicted. Observability only.
func (g *GossipManager) IsSuspect(nodeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.lastSeen[nodeID]
	if !ok {
		return false
	}
	return time.Since(ts) > config.FailureTimeout
}

////////////////////////////////////////////////////////////////////////////////
// INBOUND HANDLER
////////////////////////////////////////////////////////////////////////////////

// ReceiveGossip validates and applies an inbound gossip payload:
//  1. Heartbeat counters are merged by taking the max per node — a
//     coordination-free CRDT merge, since counters are monotonic per node.
//  2. The routing table is compared: strictly-newer version replaces;
//     equal-version-different-uid merges; otherwise the payload is ignored.
func (g *GossipManager) ReceiveGossip(data gossipPayload) error {
	if data.Sender == "" || data.HeartbeatMap == nil || data.RoutingTable.Nodes == nil {
		return ErrMalformedGossip
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for nodeID, hb := range data.HeartbeatMap {
		// Unseen peers start below any possible counter, matching the
		// Python reference's heartbeat_map.get(node_id, -1) default.
		local, ok := g.heartbeatMap[nodeID]
		if !ok || hb > local {
			g.heartbeatMap[nodeID] = hb
			g.lastSeen[nodeID] = now
			g.statusMap[nodeID] = statusAlive
		}
	}

	remote := data.RoutingTable
	localVersion := g.routingTable.Version
	localUID := g.routingTable.UID

	switch {
	case remote.Version > localVersion:
		g.routingTable.ReplaceWith(remote)
	case remote.Version == localVersion && remote.UID != localUID && remote.UID != "":
		g.routingTable.MergeWith(remote)
	}

	return nil
}

// Heartbeat returns the locally known heartbeat counter for nodeID.
func (g *GossipManager) Heartbeat(nodeID string) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	hb, ok := g.heartbeatMap[nodeID]
	return hb, ok
}

// Status returns the locally known status for nodeID.
func (g *GossipManager) Status(nodeID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.statusMap[nodeID]
	return s, ok
}

// Lock/Unlock expose the manager's mutex so Node can perform local
// AddNode mutations (e.g. on /join) under the same lock that guards
// gossip-driven mutation, per spec §5.
func (g *GossipManager) Lock()   { g.mu.Lock() }
func (g *GossipManager) Unlock() { g.mu.Unlock() }

// RoutingTable exposes the guarded table. Callers must hold Lock/Unlock (or
// go through a method that does) before touching it directly.
func (g *GossipManager) RoutingTable() *RoutingTable { return g.routingTable }

// splitNodeID splits "host:port" back into its parts. node_id is always
// constructed as fmt.Sprintf("%s:%d", host, port), so the last colon is the
// separator (hosts are never colon-free IPv6 literals in this system).
func splitNodeID(nodeID string) (string, int, error) {
	idx := strings.LastIndexByte(nodeID, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("invalid node id %q", nodeID)
	}
	host := nodeID[:idx]
	port, err := strconv.Atoi(nodeID[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid node id %q: %w", nodeID, err)
	}
	return host, port, nil
}
