package gossip

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/merge"
	"github.com/loambase/loam/storage"
	"github.com/loambase/loam/util/log"
	"github.com/loambase/loam/wire"
)

/*
The sync server is the passive side of anti-entropy. It accepts connections,
authenticates the handshake, and then answers clock, pull, and push requests
one at a time per connection. Connections are fully independent: a protocol
violation or decode failure tears down that connection and nothing else. The
server never initiates a message.
*/

////////////////////////////////////////////////////////////////////////////////

// Server answers sync requests from peers.
type Server struct {
	addr      string
	id        Identity
	store     storage.Store
	merger    *merge.Engine
	handshake time.Duration
}

// NewServer returns a sync server for the given identity, answering reads
// from store and routing pushed batches through merger.
func NewServer(addr string, id Identity, store storage.Store, merger *merge.Engine) *Server {
	return &Server{
		addr:      addr,
		id:        id,
		store:     store,
		merger:    merger,
		handshake: 5 * time.Second,
	}
}

// Run accepts connections until the context is canceled. Failure to bind is
// fatal and returned to the caller.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind sync port %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on an already bound listener until the context
// is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	log.Infow(ctx, "sync server listening", "addr", ln.Addr().String(), "secure", s.id.Secure)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnw(ctx, "failed to accept connection", "error", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

// handle drives one connection: handshake first, then sequential exchanges.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ctx = log.AddTags(ctx, "remote", conn.RemoteAddr().String())
	codec := wire.NewCodec()
	peer, err := s.acceptHandshake(conn, codec)
	if err != nil {
		log.Warnw(ctx, "handshake failed", "error", err)
		return
	}
	ctx = log.AddTags(ctx, "peer", peer)

	for {
		typ, payload, err := codec.ReadMessage(conn)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Debugw(ctx, "connection closed", "error", err)
			}
			return
		}
		if err := s.dispatch(ctx, conn, codec, typ, payload); err != nil {
			log.Warnw(ctx, "terminating connection", "error", err)
			return
		}
	}
}

// acceptHandshake validates the peer's credentials and negotiates features.
// The auth token comparison is constant-time. Secure and plaintext clusters
// are mutually exclusive: a secure node rejects plaintext handshakes and a
// plaintext node rejects key-bearing ones.
func (s *Server) acceptHandshake(conn net.Conn, codec *wire.Codec) (string, error) {
	if err := conn.SetDeadline(time.Now().Add(s.handshake)); err != nil {
		return "", fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{}) //nolint:errcheck

	typ, payload, err := codec.ReadMessage(conn)
	if err != nil {
		return "", err
	}
	if typ != wire.TypeHandshakeReq {
		return "", fmt.Errorf("expected handshake, got %s", typ)
	}
	var req wire.HandshakeReq
	if err := req.UnmarshalBinary(payload); err != nil {
		return "", err
	}

	authorized := subtle.ConstantTimeCompare([]byte(req.AuthToken), []byte(s.id.AuthToken)) == 1
	modeOK := s.id.Secure == (len(req.PublicKey) > 0)
	if !authorized || !modeOK {
		res := wire.HandshakeRes{NodeID: s.id.NodeID, Accepted: false}
		if err := codec.WriteMessage(conn, res); err != nil {
			return "", err
		}
		if !authorized {
			return "", fmt.Errorf("peer %s presented an invalid auth token", req.NodeID)
		}
		return "", fmt.Errorf("peer %s mode mismatch (secure=%v)", req.NodeID, s.id.Secure)
	}

	res := wire.HandshakeRes{
		NodeID:              s.id.NodeID,
		Accepted:            true,
		SelectedCompression: wire.SelectCompression(req.SupportedCompression),
	}
	if s.id.Secure {
		priv, err := wire.GenerateKeyPair()
		if err != nil {
			return "", err
		}
		res.PublicKey = priv.PublicKey().Bytes()
		aead, err := wire.SessionCipher(priv, req.PublicKey)
		if err != nil {
			return "", err
		}
		if err := codec.WriteMessage(conn, res); err != nil {
			return "", err
		}
		codec.EnableSecure(aead)
		codec.EnableCompression(res.SelectedCompression)
		return req.NodeID, nil
	}
	if err := codec.WriteMessage(conn, res); err != nil {
		return "", err
	}
	codec.EnableCompression(res.SelectedCompression)
	return req.NodeID, nil
}

func (s *Server) dispatch(
	ctx context.Context, conn net.Conn, codec *wire.Codec, typ wire.MsgType, payload []byte) error {
	switch typ {
	case wire.TypeGetClockReq:
		latest, err := s.store.LatestTimestamp(ctx)
		if err != nil {
			return fmt.Errorf("failed to read latest timestamp: %w", err)
		}
		return codec.WriteMessage(conn, wire.ClockRes{Clock: latest})

	case wire.TypePullChangesReq:
		var req wire.PullChangesReq
		if err := req.UnmarshalBinary(payload); err != nil {
			return err
		}
		entries, err := s.store.OplogSince(ctx, req.Since)
		if err != nil {
			return fmt.Errorf("failed to read oplog: %w", err)
		}
		res := wire.ChangeSetRes{Entries: make([]wire.OplogEntry, 0, len(entries))}
		for _, e := range entries {
			res.Entries = append(res.Entries, wire.FromDoc(e))
		}
		return codec.WriteMessage(conn, res)

	case wire.TypePushChangesReq:
		var req wire.PushChangesReq
		if err := req.UnmarshalBinary(payload); err != nil {
			return err
		}
		entries := make([]doc.OplogEntry, 0, len(req.Entries))
		for _, e := range req.Entries {
			entries = append(entries, e.ToDoc())
		}
		if err := s.merger.ApplyBatch(ctx, entries); err != nil {
			log.Warnw(ctx, "failed to merge pushed batch", "error", err)
			return codec.WriteMessage(conn, wire.AckRes{Success: false})
		}
		log.Debugw(ctx, "merged pushed batch", "entries", len(entries))
		return codec.WriteMessage(conn, wire.AckRes{Success: true})

	default:
		return fmt.Errorf("%w: %s", wire.ErrUnknownType, typ)
	}
}
