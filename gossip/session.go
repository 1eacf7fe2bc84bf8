package gossip

import (
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/wire"
)

/*
A session is one authenticated TCP connection to a peer's sync server.
Sessions are long-lived: the orchestrator pools them across rounds and only
reconnects after a failure. A session is owned by at most one goroutine at a
time - the pool enforces that - so request/response exchanges never
interleave on one connection.
*/

////////////////////////////////////////////////////////////////////////////////

// Identity is this node's cluster credentials. Secure enables the encrypted
// session mode; secure and plaintext nodes refuse each other.
type Identity struct {
	NodeID    string
	AuthToken string
	Secure    bool
}

// ErrHandshakeRejected is returned when a peer refuses our credentials.
var ErrHandshakeRejected = errors.New("handshake rejected by peer")

type session struct {
	nodeID  string
	addr    string
	conn    net.Conn
	codec   *wire.Codec
	timeout time.Duration

	// watermark is the peer's clock as of our last completed pull over this
	// session. A fresh session pulls from zero, which replays history the
	// idempotent merge path discards; that is what lets two replicas whose
	// clocks are equal but whose histories diverged (a healed partition)
	// still converge.
	watermark hlc.Timestamp
}

// dialSession connects to addr and runs the handshake, returning a ready
// session.
func dialSession(ctx context.Context, addr string, id Identity, timeout time.Duration) (*session, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	s := &session{
		addr:    addr,
		conn:    conn,
		codec:   wire.NewCodec(),
		timeout: timeout,
	}
	if err := s.handshake(id); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) handshake(id Identity) error {
	req := wire.HandshakeReq{
		NodeID:               id.NodeID,
		AuthToken:            id.AuthToken,
		SupportedCompression: wire.SupportedCompression,
	}
	var priv *ecdh.PrivateKey
	if id.Secure {
		key, err := wire.GenerateKeyPair()
		if err != nil {
			return err
		}
		priv = key
		req.PublicKey = priv.PublicKey().Bytes()
	}
	typ, payload, err := s.roundTrip(req)
	if err != nil {
		return fmt.Errorf("handshake with %s failed: %w", s.addr, err)
	}
	if typ != wire.TypeHandshakeRes {
		return fmt.Errorf("handshake with %s failed: unexpected response %s", s.addr, typ)
	}
	var res wire.HandshakeRes
	if err := res.UnmarshalBinary(payload); err != nil {
		return err
	}
	if !res.Accepted {
		return fmt.Errorf("%w: %s", ErrHandshakeRejected, s.addr)
	}
	if id.Secure {
		if len(res.PublicKey) == 0 {
			return fmt.Errorf("handshake with %s failed: peer did not negotiate secure mode", s.addr)
		}
		aead, err := wire.SessionCipher(priv, res.PublicKey)
		if err != nil {
			return err
		}
		s.codec.EnableSecure(aead)
	}
	s.codec.EnableCompression(res.SelectedCompression)
	s.nodeID = res.NodeID
	return nil
}

// roundTrip sends one request and reads one response under the session
// timeout.
func (s *session) roundTrip(msg wire.Message) (wire.MsgType, []byte, error) {
	deadline := time.Now().Add(s.timeout)
	if err := s.conn.SetDeadline(deadline); err != nil {
		return 0, nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	defer s.conn.SetDeadline(time.Time{}) //nolint:errcheck
	if err := s.codec.WriteMessage(s.conn, msg); err != nil {
		return 0, nil, err
	}
	return s.codec.ReadMessage(s.conn)
}

// getClock asks the peer for its latest oplog timestamp.
func (s *session) getClock() (hlc.Timestamp, error) {
	typ, payload, err := s.roundTrip(wire.GetClockReq{})
	if err != nil {
		return hlc.Timestamp{}, err
	}
	if typ != wire.TypeClockRes {
		return hlc.Timestamp{}, fmt.Errorf("unexpected response %s to clock request", typ)
	}
	var res wire.ClockRes
	if err := res.UnmarshalBinary(payload); err != nil {
		return hlc.Timestamp{}, err
	}
	return res.Clock, nil
}

// pull fetches the peer's oplog entries newer than since.
func (s *session) pull(since hlc.Timestamp) ([]doc.OplogEntry, error) {
	typ, payload, err := s.roundTrip(wire.PullChangesReq{Since: since})
	if err != nil {
		return nil, err
	}
	if typ != wire.TypeChangeSetRes {
		return nil, fmt.Errorf("unexpected response %s to pull request", typ)
	}
	var res wire.ChangeSetRes
	if err := res.UnmarshalBinary(payload); err != nil {
		return nil, err
	}
	entries := make([]doc.OplogEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, e.ToDoc())
	}
	return entries, nil
}

// push delivers entries to the peer and waits for its acknowledgement.
func (s *session) push(entries []doc.OplogEntry) error {
	req := wire.PushChangesReq{Entries: make([]wire.OplogEntry, 0, len(entries))}
	for _, e := range entries {
		req.Entries = append(req.Entries, wire.FromDoc(e))
	}
	typ, payload, err := s.roundTrip(req)
	if err != nil {
		return err
	}
	if typ != wire.TypeAckRes {
		return fmt.Errorf("unexpected response %s to push request", typ)
	}
	var res wire.AckRes
	if err := res.UnmarshalBinary(payload); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("peer %s rejected pushed changes", s.nodeID)
	}
	return nil
}

func (s *session) close() {
	s.conn.Close()
}
