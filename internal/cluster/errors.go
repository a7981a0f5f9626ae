package cluster

import "errors"

// Error kinds per spec §7.
//
// Propagation policy: transient network errors are absorbed by periodic
// convergence (gossip retries next round, migration retries next pass).
// Ownership and validation errors propagate to the requester. Structural
// invariants (empty ring, missing physical node) are bugs and abort the
// operation loudly.
var (
	// ErrNotOwner is returned when a request lands on a node that is not
	// currently responsible for the key. Callers should retry against the
	// node named in the piggybacked routing table.
	ErrNotOwner = errors.New("this node is not responsible for this key")

	// ErrNotFound is returned when a key is absent on the responsible node.
	ErrNotFound = errors.New("key not found")

	// ErrEmptyRing is returned by a lookup against a RoutingTable with no
	// virtual nodes. It should never occur after normal bootstrap (every
	// RoutingTable adds itself on construction) and is treated as fatal for
	// the operation that hit it.
	ErrEmptyRing = errors.New("routing table has no virtual nodes")

	// ErrMalformedGossip is returned when an inbound gossip payload fails
	// validation (missing sender/heartbeat_map/routing_table).
	ErrMalformedGossip = errors.New("malformed gossip payload")

	// ErrMalformedRequest is returned for malformed client request bodies.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrTransport marks a network send failure. Gossip silently retries
	// next round; migration silently retries next pass.
	ErrTransport = errors.New("transport error")

	// ErrBootstrapFailure means a joining node could not reach its
	// configured bootstrap node. The CLI exits nonzero on this; a server
	// node continues as a singleton cluster.
	ErrBootstrapFailure = errors.New("bootstrap node unreachable")
)
