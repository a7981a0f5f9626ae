package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	a := H("node-a:9000#0")
	b := H("node-a:9000#0")
	require.Equal(t, a, b)
}

func TestHash_DifferentInputsDiffer(t *testing.T) {
	require.NotEqual(t, H("node-a:9000#0"), H("node-a:9000#1"))
	require.NotEqual(t, H("node-a:9000"), H("node-b:9000"))
}

func TestHash_Empty(t *testing.T) {
	require.NotPanics(t, func() { H("") })
}

// TestHash_MatchesReferenceImplementation pins H against
// original_source/utils.py's int(hexdigest, 16) % (2**64) for a known input,
// so a future change that takes the wrong 8 bytes of the digest (e.g. the
// most-significant instead of least-significant) fails loudly instead of
// only breaking cross-node agreement in production.
func TestHash_MatchesReferenceImplementation(t *testing.T) {
	require.Equal(t, uint64(8287805712743766052), H("hello"))
}
