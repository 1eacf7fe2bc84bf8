package resolve

import (
	"github.com/loambase/loam/hlc"
)

/*
Package resolve provides the conflict resolution strategies applied when a
remote operation supersedes local state. Resolvers are pure functions of
their inputs: given the same bodies and timestamps they return the same
bytes on every node, which is what lets gossip converge regardless of
delivery order.
*/

////////////////////////////////////////////////////////////////////////////////

// Resolver merges a local and a remote document body. The returned bytes are
// persisted with the maximum of the two timestamps.
type Resolver interface {
	// Merge combines the two bodies. localTS and remoteTS order the sides;
	// implementations must be deterministic under swapping the
	// (local, remote) roles with their timestamps.
	Merge(local, remote []byte, localTS, remoteTS hlc.Timestamp) ([]byte, error)

	// Name identifies the strategy in logs and configuration.
	Name() string
}

// LWW is the last-write-wins resolver: the body with the higher timestamp
// wins outright. This is the default strategy.
type LWW struct{}

// Merge returns the body with the higher timestamp.
func (LWW) Merge(local, remote []byte, localTS, remoteTS hlc.Timestamp) ([]byte, error) {
	if remoteTS.After(localTS) {
		return remote, nil
	}
	return local, nil
}

// Name implements Resolver.
func (LWW) Name() string { return "lww" }

// ForName returns the resolver registered under name, defaulting to LWW.
func ForName(name string) Resolver {
	if name == (FieldMerge{}).Name() {
		return FieldMerge{}
	}
	return LWW{}
}
