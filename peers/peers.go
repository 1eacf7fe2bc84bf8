package peers

import (
	"context"
	"sync"
	"time"

	"github.com/loambase/loam/util/log"
)

/*
Package peers maintains the in-memory membership set. Entries are created by
discovery beacons and refreshed on every beacon; a sweeper evicts peers
whose beacons have gone quiet. The local node is never listed - the
orchestrator would otherwise sync with itself.
*/

////////////////////////////////////////////////////////////////////////////////

// Descriptor identifies a live peer and where to reach its sync server.
type Descriptor struct {
	NodeID   string    `json:"node_id"`
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"last_seen"`
}

// Directory is the thread-safe peer set.
type Directory struct {
	mtx           sync.RWMutex
	self          string
	peers         map[string]Descriptor
	sweepInterval time.Duration
	ttl           time.Duration
	now           func() time.Time

	onJoin   func(Descriptor)
	onExpire func(Descriptor)
}

// Option configures a Directory.
type Option func(*Directory)

// WithSweepInterval overrides how often the sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(dir *Directory) {
		dir.sweepInterval = d
	}
}

// WithTTL overrides how long a peer survives without a beacon.
func WithTTL(d time.Duration) Option {
	return func(dir *Directory) {
		dir.ttl = d
	}
}

// WithNowFunc substitutes the time source for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(dir *Directory) {
		dir.now = f
	}
}

// OnJoin registers a callback fired when a peer is first seen.
func OnJoin(f func(Descriptor)) Option {
	return func(dir *Directory) {
		dir.onJoin = f
	}
}

// OnExpire registers a callback fired when a peer is evicted.
func OnExpire(f func(Descriptor)) Option {
	return func(dir *Directory) {
		dir.onExpire = f
	}
}

// NewDirectory returns an empty directory that will never list self.
func NewDirectory(self string, opts ...Option) *Directory {
	dir := &Directory{
		self:          self,
		peers:         make(map[string]Descriptor),
		sweepInterval: 10 * time.Second,
		ttl:           15 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(dir)
	}
	return dir
}

// Upsert records a peer sighting, refreshing its liveness.
func (dir *Directory) Upsert(d Descriptor) {
	if d.NodeID == dir.self || d.NodeID == "" {
		return
	}
	d.LastSeen = dir.now()
	dir.mtx.Lock()
	_, known := dir.peers[d.NodeID]
	dir.peers[d.NodeID] = d
	dir.mtx.Unlock()
	if !known && dir.onJoin != nil {
		dir.onJoin(d)
	}
}

// Snapshot returns an independent copy of the current peer set.
func (dir *Directory) Snapshot() []Descriptor {
	dir.mtx.RLock()
	defer dir.mtx.RUnlock()
	peers := make([]Descriptor, 0, len(dir.peers))
	for _, d := range dir.peers {
		peers = append(peers, d)
	}
	return peers
}

// Get returns the descriptor for a node id if present.
func (dir *Directory) Get(nodeID string) (Descriptor, bool) {
	dir.mtx.RLock()
	defer dir.mtx.RUnlock()
	d, ok := dir.peers[nodeID]
	return d, ok
}

// Len returns the current peer count.
func (dir *Directory) Len() int {
	dir.mtx.RLock()
	defer dir.mtx.RUnlock()
	return len(dir.peers)
}

// Sweep evicts peers whose last beacon is older than the TTL.
func (dir *Directory) Sweep() {
	cutoff := dir.now().Add(-dir.ttl)
	var expired []Descriptor
	dir.mtx.Lock()
	for id, d := range dir.peers {
		if d.LastSeen.Before(cutoff) {
			delete(dir.peers, id)
			expired = append(expired, d)
		}
	}
	dir.mtx.Unlock()
	if dir.onExpire != nil {
		for _, d := range expired {
			dir.onExpire(d)
		}
	}
}

// Run sweeps on the configured interval until the context is canceled.
func (dir *Directory) Run(ctx context.Context) {
	ticker := time.NewTicker(dir.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := dir.Len()
			dir.Sweep()
			if evicted := before - dir.Len(); evicted > 0 {
				log.Debugw(ctx, "evicted stale peers", "count", evicted)
			}
		}
	}
}
