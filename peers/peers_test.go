package peers_test

import (
	"testing"
	"time"

	"github.com/loambase/loam/peers"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndSnapshot(t *testing.T) {
	dir := peers.NewDirectory("self")
	dir.Upsert(peers.Descriptor{NodeID: "a", Addr: "10.0.0.1:7420"})
	dir.Upsert(peers.Descriptor{NodeID: "b", Addr: "10.0.0.2:7420"})

	snapshot := dir.Snapshot()
	require.Len(t, snapshot, 2)

	// The snapshot is an independent copy.
	snapshot[0].Addr = "mutated"
	d, ok := dir.Get(snapshot[0].NodeID)
	require.True(t, ok)
	require.NotEqual(t, "mutated", d.Addr)
}

func TestLocalNodeNeverListed(t *testing.T) {
	dir := peers.NewDirectory("self")
	dir.Upsert(peers.Descriptor{NodeID: "self", Addr: "10.0.0.1:7420"})
	dir.Upsert(peers.Descriptor{NodeID: "", Addr: "10.0.0.2:7420"})
	require.Zero(t, dir.Len())
}

func TestUpsertRefreshesLastSeen(t *testing.T) {
	now := time.Unix(1000, 0)
	dir := peers.NewDirectory("self", peers.WithNowFunc(func() time.Time { return now }))

	dir.Upsert(peers.Descriptor{NodeID: "a", Addr: "10.0.0.1:7420"})
	now = now.Add(7 * time.Second)
	dir.Upsert(peers.Descriptor{NodeID: "a", Addr: "10.0.0.1:7420"})

	d, ok := dir.Get("a")
	require.True(t, ok)
	require.Equal(t, now, d.LastSeen)
}

func TestSweepEvictsStalePeers(t *testing.T) {
	now := time.Unix(1000, 0)
	dir := peers.NewDirectory("self", peers.WithNowFunc(func() time.Time { return now }))

	dir.Upsert(peers.Descriptor{NodeID: "stale", Addr: "10.0.0.1:7420"})
	now = now.Add(10 * time.Second)
	dir.Upsert(peers.Descriptor{NodeID: "fresh", Addr: "10.0.0.2:7420"})

	// Three missed beacons: the stale peer is past the 15 s TTL, the fresh
	// one is not.
	now = now.Add(6 * time.Second)
	dir.Sweep()

	require.Equal(t, 1, dir.Len())
	_, ok := dir.Get("fresh")
	require.True(t, ok)
	_, ok = dir.Get("stale")
	require.False(t, ok)
}

func TestCallbacks(t *testing.T) {
	now := time.Unix(1000, 0)
	var joined, expired []string
	dir := peers.NewDirectory("self",
		peers.WithNowFunc(func() time.Time { return now }),
		peers.OnJoin(func(d peers.Descriptor) { joined = append(joined, d.NodeID) }),
		peers.OnExpire(func(d peers.Descriptor) { expired = append(expired, d.NodeID) }),
	)

	dir.Upsert(peers.Descriptor{NodeID: "a", Addr: "10.0.0.1:7420"})
	dir.Upsert(peers.Descriptor{NodeID: "a", Addr: "10.0.0.1:7420"}) // refresh, not a join
	require.Equal(t, []string{"a"}, joined)

	now = now.Add(16 * time.Second)
	dir.Sweep()
	require.Equal(t, []string{"a"}, expired)
}
