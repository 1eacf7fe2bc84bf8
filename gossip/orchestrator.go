package gossip

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/loambase/loam/merge"
	"github.com/loambase/loam/peers"
	"github.com/loambase/loam/storage"
	"github.com/loambase/loam/util/log"
	"golang.org/x/sync/errgroup"
)

/*
The orchestrator is the active side of anti-entropy. Every round it samples
a small fanout of peers from the directory and reconciles with each in
parallel: exchange clocks, pull the peer's entries past the session's
watermark when the peer's clock is beyond it, and push the local entries
past the peer's clock when the local clock is ahead. Because the HLC order
is total, "ahead" is well-defined; once the watermark has caught up, equal
clocks mean nothing to do. A round's failures are
warnings - the failed session is dropped and the next round reconnects.
*/

////////////////////////////////////////////////////////////////////////////////

// Orchestrator periodically reconciles with sampled peers.
type Orchestrator struct {
	dir      *peers.Directory
	store    storage.Store
	merger   *merge.Engine
	id       Identity
	pool     *pool
	interval time.Duration
	fanout   int
	timeout  time.Duration

	// Peers that rejected our handshake are not retried until their
	// directory entry expires and a fresh beacon brings them back.
	rejectedMtx sync.Mutex
	rejected    map[string]bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInterval overrides the round cadence.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.interval = d
	}
}

// WithFanout overrides how many peers each round samples.
func WithFanout(n int) Option {
	return func(o *Orchestrator) {
		o.fanout = n
	}
}

// WithRequestTimeout overrides the per-exchange network timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// NewOrchestrator returns an orchestrator syncing the local store with
// peers from dir.
func NewOrchestrator(
	dir *peers.Directory,
	store storage.Store,
	merger *merge.Engine,
	id Identity,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		dir:      dir,
		store:    store,
		merger:   merger,
		id:       id,
		pool:     newPool(),
		interval: 2 * time.Second,
		fanout:   3,
		timeout:  5 * time.Second,
		rejected: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fanout < 1 {
		o.fanout = 1
	}
	return o
}

// Forget clears a peer's rejection state and drops its pooled session. The
// directory's expiry callback routes here, so a peer that stops beaconing
// and later returns gets a fresh handshake attempt.
func (o *Orchestrator) Forget(nodeID string) {
	o.rejectedMtx.Lock()
	delete(o.rejected, nodeID)
	o.rejectedMtx.Unlock()
	o.pool.drop(nodeID)
}

func (o *Orchestrator) isRejected(nodeID string) bool {
	o.rejectedMtx.Lock()
	defer o.rejectedMtx.Unlock()
	return o.rejected[nodeID]
}

func (o *Orchestrator) markRejected(nodeID string) {
	o.rejectedMtx.Lock()
	defer o.rejectedMtx.Unlock()
	o.rejected[nodeID] = true
}

// Run executes sync rounds until the context is canceled, then tears down
// all pooled sessions.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.pool.closeAll()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.round(ctx)
		}
	}
}

// round samples the fanout and syncs with each target in parallel.
func (o *Orchestrator) round(ctx context.Context) {
	snapshot := o.dir.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	rand.Shuffle(len(snapshot), func(i, j int) {
		snapshot[i], snapshot[j] = snapshot[j], snapshot[i]
	})
	n := o.fanout
	if n > len(snapshot) {
		n = len(snapshot)
	}
	targets := snapshot[:n]

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanout)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := o.syncWith(ctx, target); err != nil {
				log.Warnw(ctx, "sync failed", "peer", target.NodeID, "addr", target.Addr, "error", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

// syncWith reconciles with one peer over its pooled session, dialing a
// fresh one if none is pooled. Any error discards the session.
func (o *Orchestrator) syncWith(ctx context.Context, target peers.Descriptor) error {
	if o.isRejected(target.NodeID) {
		return nil
	}
	s, pooled := o.pool.take(target.NodeID)
	if !pooled {
		dialed, err := dialSession(ctx, target.Addr, o.id, o.timeout)
		if err != nil {
			if errors.Is(err, ErrHandshakeRejected) {
				o.markRejected(target.NodeID)
			}
			return err
		}
		s = dialed
	}
	if err := o.exchange(ctx, s); err != nil {
		s.close()
		return err
	}
	o.pool.put(target.NodeID, s)
	return nil
}

// exchange reconciles one session. The pull side uses the session's
// watermark rather than the local clock: a reconnect (watermark zero) pulls
// the peer's full history, which is what heals a partition where both sides
// advanced past each other's unseen entries. Replayed entries are discarded
// by the idempotent merge path. The push side follows the peer's advertised
// clock; the peer's own pulls cover whatever that misses.
func (o *Orchestrator) exchange(ctx context.Context, s *session) error {
	remoteClock, err := s.getClock()
	if err != nil {
		return err
	}
	localClock, err := o.store.LatestTimestamp(ctx)
	if err != nil {
		return err
	}
	if remoteClock.After(s.watermark) {
		entries, err := s.pull(s.watermark)
		if err != nil {
			return err
		}
		if err := o.merger.ApplyBatch(ctx, entries); err != nil {
			return err
		}
		s.watermark = remoteClock
		log.Debugw(ctx, "pulled changes", "peer", s.nodeID, "entries", len(entries))
	}
	if localClock.After(remoteClock) {
		entries, err := o.store.OplogSince(ctx, remoteClock)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		if err := s.push(entries); err != nil {
			return err
		}
		log.Debugw(ctx, "pushed changes", "peer", s.nodeID, "entries", len(entries))
	}
	return nil
}
