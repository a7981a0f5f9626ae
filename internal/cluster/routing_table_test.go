package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// S1: constructing a table adds self, and each add/remove bumps version and
// keeps the virtual-node count consistent with replica_factor * node count.
func TestRoutingTable_AddRemove(t *testing.T) {
	rt := NewRoutingTable("a", 9000, 8)
	require.Equal(t, uint64(2), rt.Version) // Version=1 at construction, +1 from the self AddNode
	require.Equal(t, 1, rt.NodeCount())
	require.Equal(t, 8, rt.VirtualNodeCount())

	rt.AddNode("b", 9001)
	require.Equal(t, uint64(3), rt.Version)
	require.Equal(t, 2, rt.NodeCount())
	require.Equal(t, 16, rt.VirtualNodeCount())

	// Adding the same node again is a no-op.
	rt.AddNode("b", 9001)
	require.Equal(t, uint64(3), rt.Version)
	require.Equal(t, 16, rt.VirtualNodeCount())

	rt.RemoveNode("b", 9001)
	require.Equal(t, uint64(4), rt.Version)
	require.Equal(t, 1, rt.NodeCount())
	require.Equal(t, 8, rt.VirtualNodeCount())

	// Removing an absent node is a no-op.
	rt.RemoveNode("c", 9002)
	require.Equal(t, uint64(4), rt.Version)
}

// S2: GetResponsibleNode is deterministic for a fixed ring — the same key
// always resolves to the same owner until membership changes.
func TestRoutingTable_LookupIsDeterministic(t *testing.T) {
	rt := NewRoutingTable("a", 9000, 32)
	rt.AddNode("b", 9001)
	rt.AddNode("c", 9002)

	owner1, err := rt.GetResponsibleNode("some-key")
	require.NoError(t, err)
	owner2, err := rt.GetResponsibleNode("some-key")
	require.NoError(t, err)
	require.Equal(t, owner1, owner2)
}

// S3: lookup wraps around the ring when the key's hash exceeds every
// virtual node's hash.
func TestRoutingTable_LookupWrapsAround(t *testing.T) {
	rt := NewRoutingTable("a", 9000, 16)
	rt.AddNode("b", 9001)
	rt.AddNode("c", 9002)

	// Every key must resolve to a known physical node.
	for _, key := range []string{"k1", "k2", "k3", "k4", "k5", "wrap-candidate"} {
		owner, err := rt.GetResponsibleNode(key)
		require.NoError(t, err)
		require.True(t, rt.HasNode(owner.NodeID))
	}

	// A key whose hash is above the last virtual node's hash wraps to the
	// virtual node at index 0.
	last := rt.virtualNodes[len(rt.virtualNodes)-1].Hash
	found := false
	for i := 0; i < 100000 && !found; i++ {
		key := fmt.Sprintf("wrap-%d", i)
		if H(key) <= last {
			continue
		}
		found = true
		owner, err := rt.GetResponsibleNode(key)
		require.NoError(t, err)
		require.Equal(t, rt.virtualNodes[0].PhysicalNodeID, owner.NodeID)
	}
	require.True(t, found, "no key hashed above the last virtual node")
}

func TestRoutingTable_EmptyRing(t *testing.T) {
	rt := &RoutingTable{nodeMap: make(map[string]NodeMeta)}
	_, err := rt.GetResponsibleNode("anything")
	require.ErrorIs(t, err, ErrEmptyRing)
}

func TestRoutingTable_VirtualNodesSortedByHashThenVnodeID(t *testing.T) {
	rt := NewRoutingTable("a", 9000, 50)
	rt.AddNode("b", 9001)
	rt.AddNode("c", 9002)

	for i := 1; i < len(rt.virtualNodes); i++ {
		prev, cur := rt.virtualNodes[i-1], rt.virtualNodes[i]
		if prev.Hash == cur.Hash {
			require.LessOrEqual(t, prev.VnodeID, cur.VnodeID)
		} else {
			require.Less(t, prev.Hash, cur.Hash)
		}
	}
}

func TestRoutingTable_SerializeRoundTrip(t *testing.T) {
	rt := NewRoutingTable("a", 9000, 4)
	rt.AddNode("b", 9001)

	wire := rt.Serialize()
	require.Equal(t, rt.Version, wire.Version)
	require.Equal(t, rt.UID, wire.UID)
	require.Len(t, wire.Nodes, 2)
}

func TestRoutingTable_ReplaceWith(t *testing.T) {
	rt := NewRoutingTable("a", 9000, 4)

	other := NewRoutingTable("x", 1000, 4)
	other.AddNode("y", 1001)
	other.AddNode("z", 1002)
	wire := other.Serialize()

	rt.ReplaceWith(wire)
	require.Equal(t, wire.Version, rt.Version)
	require.Equal(t, wire.UID, rt.UID)
	require.Equal(t, 3, rt.NodeCount())
	require.Equal(t, 12, rt.VirtualNodeCount())
}

func TestRoutingTable_MergeWithIsIdempotent(t *testing.T) {
	a := NewRoutingTable("a", 9000, 4)
	a.AddNode("b", 9001)

	remote := NewRoutingTable("a", 9000, 4)
	remote.AddNode("c", 9002)
	remoteWire := remote.Serialize()

	a.MergeWith(remoteWire)
	firstNodeCount := a.NodeCount()
	require.Equal(t, 3, firstNodeCount) // a, b, c

	// Merging the same snapshot again changes nothing further.
	a.MergeWith(remoteWire)
	require.Equal(t, firstNodeCount, a.NodeCount())
}
