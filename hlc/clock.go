package hlc

import (
	"sync"
	"time"
)

/*
Clock is the node-wide timestamp source. Tick and Observe are the only
mutators and share one mutex, so successive ticks are strictly monotonic
even when the system wall clock stalls or jumps backward - the logical
counter absorbs the difference. Observe folds a remote timestamp into the
local state so that local writes issued after a merge always supersede the
merged entries.
*/

////////////////////////////////////////////////////////////////////////////////

// Clock issues monotonic hybrid logical timestamps for one node.
type Clock interface {
	// Tick advances the clock and returns a timestamp strictly greater than
	// every previous Tick result on this node.
	Tick() Timestamp

	// Observe advances the clock past a timestamp received from a peer.
	Observe(remote Timestamp)

	// Current returns the clock's present value without advancing it.
	Current() Timestamp
}

type clock struct {
	mtx  sync.Mutex
	cur  Timestamp
	node string
	now  func() int64
}

// Option configures a Clock.
type Option func(*clock)

// WithNowFunc substitutes the wall clock source. Used by tests to make tick
// sequences deterministic.
func WithNowFunc(f func() int64) Option {
	return func(c *clock) {
		c.now = f
	}
}

// NewClock returns a clock issuing timestamps for the given node.
func NewClock(node string, opts ...Option) Clock {
	c := &clock{
		node: node,
		now:  func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *clock) Tick() Timestamp {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	phys := c.now()
	if phys > c.cur.Wall {
		c.cur = Timestamp{Wall: phys, Logical: 0, Node: c.node}
	} else {
		c.cur = Timestamp{Wall: c.cur.Wall, Logical: c.cur.Logical + 1, Node: c.node}
	}
	return c.cur
}

func (c *clock) Observe(remote Timestamp) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	phys := c.now()
	wall := c.cur.Wall
	if remote.Wall > wall {
		wall = remote.Wall
	}
	if phys > wall {
		wall = phys
	}
	var logical int32
	switch {
	case wall > c.cur.Wall && wall > remote.Wall:
		logical = 0
	case wall == c.cur.Wall && wall == remote.Wall:
		logical = maxI32(c.cur.Logical, remote.Logical) + 1
	case wall == c.cur.Wall:
		logical = c.cur.Logical + 1
	default:
		logical = remote.Logical + 1
	}
	c.cur = Timestamp{Wall: wall, Logical: logical, Node: c.node}
}

func (c *clock) Current() Timestamp {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.cur
}

func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
