package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestGossip(t *testing.T) (*GossipManager, *RoutingTable) {
	t.Helper()
	rt := NewRoutingTable("a", 9000, 8)
	return NewGossipManager("a:9000", rt), rt
}

func TestGossipManager_ReceiveGossip_RejectsMalformed(t *testing.T) {
	g, _ := newTestGossip(t)

	err := g.ReceiveGossip(gossipPayload{})
	require.ErrorIs(t, err, ErrMalformedGossip)
}

func TestGossipManager_ReceiveGossip_MergesHeartbeatsByMax(t *testing.T) {
	g, _ := newTestGossip(t)

	err := g.ReceiveGossip(gossipPayload{
		Sender:       "b:9001",
		HeartbeatMap: map[string]uint64{"a:9000": 5, "b:9001": 3},
		RoutingTable: g.routingTable.Serialize(),
	})
	require.NoError(t, err)

	hb, ok := g.Heartbeat("b:9001")
	require.True(t, ok)
	require.Equal(t, uint64(3), hb)

	// A stale (lower) heartbeat for the same peer must not regress it.
	err = g.ReceiveGossip(gossipPayload{
		Sender:       "b:9001",
		HeartbeatMap: map[string]uint64{"b:9001": 1},
		RoutingTable: g.routingTable.Serialize(),
	})
	require.NoError(t, err)
	hb, ok = g.Heartbeat("b:9001")
	require.True(t, ok)
	require.Equal(t, uint64(3), hb)
}

// S4: a strictly-newer routing table version replaces the local one wholesale.
func TestGossipManager_ReceiveGossip_ReplacesOnNewerVersion(t *testing.T) {
	g, _ := newTestGossip(t)

	remote := NewRoutingTable("x", 7000, 8)
	remote.AddNode("y", 7001)
	remoteWire := remote.Serialize()
	require.Greater(t, remoteWire.Version, g.routingTable.Version)

	err := g.ReceiveGossip(gossipPayload{
		Sender:       "x:7000",
		HeartbeatMap: map[string]uint64{"x:7000": 0},
		RoutingTable: remoteWire,
	})
	require.NoError(t, err)
	require.Equal(t, remoteWire.Version, g.routingTable.Version)
	require.Equal(t, remoteWire.UID, g.routingTable.UID)
	require.True(t, g.routingTable.HasNode("y:7001"))
}

// S5: equal version, different uid merges node sets instead of replacing.
func TestGossipManager_ReceiveGossip_MergesOnVersionTieDifferentUID(t *testing.T) {
	g, _ := newTestGossip(t)

	remote := &RoutingTable{
		Version:       g.routingTable.Version,
		UID:           "some-other-uid",
		ReplicaFactor: g.routingTable.ReplicaFactor,
	}
	remoteWire := SerializedTable{
		Version: remote.Version,
		UID:     remote.UID,
		Nodes:   []NodeMeta{{Host: "a", Port: 9000, NodeID: "a:9000"}, {Host: "z", Port: 9999, NodeID: "z:9999"}},
	}

	err := g.ReceiveGossip(gossipPayload{
		Sender:       "z:9999",
		HeartbeatMap: map[string]uint64{"z:9999": 0},
		RoutingTable: remoteWire,
	})
	require.NoError(t, err)
	require.True(t, g.routingTable.HasNode("z:9999"))
	require.True(t, g.routingTable.HasNode("a:9000"))
}

func TestGossipManager_ReceiveGossip_IgnoresStaleVersion(t *testing.T) {
	g, _ := newTestGossip(t)
	g.routingTable.AddNode("b", 9001) // bump local version ahead

	staleWire := SerializedTable{Version: 1, UID: "stale", Nodes: []NodeMeta{{Host: "a", Port: 9000, NodeID: "a:9000"}}}
	versionBefore := g.routingTable.Version

	err := g.ReceiveGossip(gossipPayload{
		Sender:       "a:9000",
		HeartbeatMap: map[string]uint64{"a:9000": 0},
		RoutingTable: staleWire,
	})
	require.NoError(t, err)
	require.Equal(t, versionBefore, g.routingTable.Version)
}

func TestGossipManager_Status(t *testing.T) {
	g, _ := newTestGossip(t)
	status, ok := g.Status("a:9000")
	require.True(t, ok)
	require.Equal(t, statusAlive, status)

	_, ok = g.Status("nobody:0")
	require.False(t, ok)
}

func TestSplitNodeID(t *testing.T) {
	host, port, err := splitNodeID("192.168.1.5:8080")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.5", host)
	require.Equal(t, 8080, port)

	_, _, err = splitNodeID("not-a-node-id")
	require.Error(t, err)
}
