// Package cluster handles all distributed logic:
//
//   - Consistent hashing (who owns which key?)
//   - The versioned routing table and its gossip-driven convergence
//   - Failure detection and data migration
//
// Big idea:
//
// In a distributed key-value store, we must decide:
//
//	"Which node is responsible for this key?"
//
// This file implements the single building block every other file in this
// package depends on: a deterministic, 64-bit hash of a string onto the
// ring.
package cluster

import (
	"crypto/sha256"
	"encoding/binary"
)

// H hashes s onto the ring: SHA-256 of the UTF-8 bytes, taken as a 256-bit
// big-endian integer mod 2^64 — i.e. its least-significant 8 bytes, read as
// a big-endian uint64. This must stay bit-for-bit identical across
// processes, platforms, and implementations — it is part of the wire
// contract (two nodes computing H on the same key must agree).
func H(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint64(sum[len(sum)-8:])
}
