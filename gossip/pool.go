package gossip

import (
	"sync"
)

/*
Session pool. Ownership transfers atomically: take removes the session from
the map, so two concurrent rounds can never drive the same connection. A
taken session is either put back after a clean exchange or closed and
dropped after a failure; the next round reconnects.
*/

////////////////////////////////////////////////////////////////////////////////

type pool struct {
	sessions sync.Map // nodeID -> *session
}

func newPool() *pool {
	return &pool{}
}

// take claims the pooled session for a peer, if any.
func (p *pool) take(nodeID string) (*session, bool) {
	v, ok := p.sessions.LoadAndDelete(nodeID)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

// put returns a session to the pool. If another session landed for the same
// peer in the meantime, the newcomer is closed rather than leaked.
func (p *pool) put(nodeID string, s *session) {
	if _, loaded := p.sessions.LoadOrStore(nodeID, s); loaded {
		s.close()
	}
}

// drop closes and forgets any pooled session for a peer.
func (p *pool) drop(nodeID string) {
	if s, ok := p.take(nodeID); ok {
		s.close()
	}
}

// closeAll tears down every pooled session.
func (p *pool) closeAll() {
	p.sessions.Range(func(key, value any) bool {
		value.(*session).close()
		p.sessions.Delete(key)
		return true
	})
}
