package cluster

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

////////////////////////////////////////////////////////////////////////////////
// DATA MODEL
////////////////////////////////////////////////////////////////////////////////

// NodeMeta identifies one physical cluster member. Immutable once created.
type NodeMeta struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	NodeID string `json:"node_id"`
}

func newNodeMeta(host string, port int) NodeMeta {
	return NodeMeta{Host: host, Port: port, NodeID: fmt.Sprintf("%s:%d", host, port)}
}

// VirtualNode is one of R synthetic replicas of a physical node placed on
// the ring, used to smooth load imbalance.
type VirtualNode struct {
	VnodeID        string `json:"vnode_id"`
	PhysicalNodeID string `json:"physical_node_id"`
	Hash           uint64 `json:"hash"`
}

// RoutingTable is the versioned, UID-stamped consistent-hash ring with
// virtual replicas. It is the single structure carrying both cluster
// membership and the ring used to answer "who owns this key".
//
// Invariants (spec §3):
//  1. len(virtual_nodes) == replica_factor * len(node_map) after every op.
//  2. virtual_nodes is strictly sorted by hash; ties broken by vnode_id.
//  3. Every VirtualNode.PhysicalNodeID appears in node_map.
//  4. Version never decreases due to a local mutation.
//  5. After ReplaceWith(remote): (version, uid) == remote's, and node_map
//     equals the node set carried by remote.
//
// Not safe for concurrent use on its own — callers (GossipManager, Node)
// hold a single mutex around both routing-table mutation and the gossip
// maps, per spec §5.
type RoutingTable struct {
	Version       uint64
	UID           string
	ReplicaFactor int

	nodeMap      map[string]NodeMeta
	virtualNodes []VirtualNode
}

// NewRoutingTable creates a table seeded with a single self node, matching
// original_source/routing_table.py's RoutingTable.__init__, which always
// adds self_host/self_port immediately.
func NewRoutingTable(selfHost string, selfPort int, replicaFactor int) *RoutingTable {
	rt := &RoutingTable{
		Version:       1,
		UID:           uuid.NewString(),
		ReplicaFactor: replicaFactor,
		nodeMap:       make(map[string]NodeMeta),
	}
	rt.AddNode(selfHost, selfPort)
	return rt
}

////////////////////////////////////////////////////////////////////////////////
// MUTATION
////////////////////////////////////////////////////////////////////////////////

// AddNode inserts a physical node and its R virtual replicas. No-op if the
// node is already present. Bumps version and regenerates uid.
func (rt *RoutingTable) AddNode(host string, port int) {
	node := newNodeMeta(host, port)
	if _, ok := rt.nodeMap[node.NodeID]; ok {
		return
	}

	rt.nodeMap[node.NodeID] = node
	for i := 0; i < rt.ReplicaFactor; i++ {
		vnodeID := fmt.Sprintf("%s#%d", node.NodeID, i)
		vnode := VirtualNode{VnodeID: vnodeID, PhysicalNodeID: node.NodeID, Hash: H(vnodeID)}
		rt.insertSorted(vnode)
	}

	rt.Version++
	rt.UID = uuid.NewString()
}

// RemoveNode drops a physical node and every virtual node it owns. No-op if
// absent. Bumps version and regenerates uid.
func (rt *RoutingTable) RemoveNode(host string, port int) {
	nodeID := fmt.Sprintf("%s:%d", host, port)
	if _, ok := rt.nodeMap[nodeID]; !ok {
		return
	}

	delete(rt.nodeMap, nodeID)
	kept := rt.virtualNodes[:0]
	for _, v := range rt.virtualNodes {
		if v.PhysicalNodeID != nodeID {
			kept = append(kept, v)
		}
	}
	rt.virtualNodes = kept

	rt.Version++
	rt.UID = uuid.NewString()
}

// insertSorted inserts v into virtualNodes keeping it sorted by Hash
// ascending, ties broken by VnodeID lexicographic order (spec §4.2, §9).
func (rt *RoutingTable) insertSorted(v VirtualNode) {
	idx := sort.Search(len(rt.virtualNodes), func(i int) bool {
		if rt.virtualNodes[i].Hash != v.Hash {
			return rt.virtualNodes[i].Hash > v.Hash
		}
		return rt.virtualNodes[i].VnodeID > v.VnodeID
	})
	rt.virtualNodes = append(rt.virtualNodes, VirtualNode{})
	copy(rt.virtualNodes[idx+1:], rt.virtualNodes[idx:])
	rt.virtualNodes[idx] = v
}

////////////////////////////////////////////////////////////////////////////////
// LOOKUP
////////////////////////////////////////////////////////////////////////////////

// GetResponsibleNode returns the NodeMeta owning key: the first virtual node
// clockwise of H(key), wrapping to index 0 if none is strictly greater.
func (rt *RoutingTable) GetResponsibleNode(key string) (NodeMeta, error) {
	if len(rt.virtualNodes) == 0 {
		return NodeMeta{}, ErrEmptyRing
	}

	h := H(key)
	idx := sort.Search(len(rt.virtualNodes), func(i int) bool {
		return rt.virtualNodes[i].Hash > h
	})
	if idx == len(rt.virtualNodes) {
		idx = 0
	}

	vnode := rt.virtualNodes[idx]
	return rt.nodeMap[vnode.PhysicalNodeID], nil
}

// NodeCount returns the number of distinct physical nodes.
func (rt *RoutingTable) NodeCount() int {
	return len(rt.nodeMap)
}

// VirtualNodeCount returns the number of virtual nodes (for invariant checks).
func (rt *RoutingTable) VirtualNodeCount() int {
	return len(rt.virtualNodes)
}

// HasNode reports whether a physical node is present.
func (rt *RoutingTable) HasNode(nodeID string) bool {
	_, ok := rt.nodeMap[nodeID]
	return ok
}

////////////////////////////////////////////////////////////////////////////////
// WIRE FORMAT
////////////////////////////////////////////////////////////////////////////////

// SerializedTable is the wire format returned by GET /routing_table and
// embedded in piggybacked responses. Only physical nodes travel on the
// wire — every receiver reconstructs virtual nodes locally from
// (host, port, replica_factor), so ReplicaFactor must be a cluster-wide
// constant (spec §9 "virtual node reconstruction").
type SerializedTable struct {
	Version uint64     `json:"version"`
	UID     string     `json:"uid"`
	Nodes   []NodeMeta `json:"nodes"`
}

// Serialize returns the wire representation of rt.
func (rt *RoutingTable) Serialize() SerializedTable {
	nodes := make([]NodeMeta, 0, len(rt.nodeMap))
	for _, n := range rt.nodeMap {
		nodes = append(nodes, n)
	}
	return SerializedTable{Version: rt.Version, UID: rt.UID, Nodes: nodes}
}

// ReplaceWith clears all local state and rebuilds it from remote, then
// overwrites version/uid to match remote exactly (spec §4.2 invariant 5).
//
// The rebuild happens on a detached table, so rt itself changes only in the
// final assignment. That assignment is a plain struct copy, not an atomic
// swap: callers must hold the lock that guards rt (spec §5) for a
// concurrent reader never to see it mid-mutation.
func (rt *RoutingTable) ReplaceWith(remote SerializedTable) {
	fresh := &RoutingTable{
		ReplicaFactor: rt.ReplicaFactor,
		nodeMap:       make(map[string]NodeMeta),
	}
	for _, n := range remote.Nodes {
		fresh.AddNode(n.Host, n.Port)
	}
	fresh.Version = remote.Version
	fresh.UID = remote.UID

	*rt = *fresh
}

// MergeWith adds every node from remote not already present locally.
// Version bumps happen naturally per added node; uid is regenerated on the
// last change. The result is the union of both node sets — idempotent and
// commutative, so repeated merges (e.g. from duplicate gossip) are safe.
func (rt *RoutingTable) MergeWith(remote SerializedTable) {
	for _, n := range remote.Nodes {
		rt.AddNode(n.Host, n.Port)
	}
}

// Nodes returns a snapshot of all physical nodes.
func (rt *RoutingTable) Nodes() []NodeMeta {
	out := make([]NodeMeta, 0, len(rt.nodeMap))
	for _, n := range rt.nodeMap {
		out = append(out, n)
	}
	return out
}
