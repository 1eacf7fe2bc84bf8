package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/loambase/loam/peers"
	"github.com/loambase/loam/util/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

/*
Package discovery announces this node over UDP broadcast and listens for
other nodes' announcements, feeding the peer directory. Beacons are small
JSON datagrams; the snake_case field names are part of the wire contract.
A peer's sync address is the datagram's source IP paired with the TCP port
the beacon advertises. Discovery is best-effort: a malformed or undeliverable
beacon is logged and life goes on.
*/

////////////////////////////////////////////////////////////////////////////////

// Beacon is the broadcast announcement payload.
type Beacon struct {
	NodeID  string `json:"node_id"`
	TCPPort int    `json:"tcp_port"`
}

// Service emits and receives beacons.
type Service struct {
	nodeID   string
	tcpPort  int
	dir      *peers.Directory
	port     int
	interval time.Duration
	loopback bool
}

// Option configures the discovery service.
type Option func(*Service)

// WithPort overrides the UDP beacon port.
func WithPort(port int) Option {
	return func(s *Service) {
		s.port = port
	}
}

// WithInterval overrides the beacon emit interval.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		s.interval = d
	}
}

// WithLoopbackOverride substitutes 127.0.0.1 for the beacon sender address.
// Used in single-host deployments where several nodes share one interface.
func WithLoopbackOverride(enabled bool) Option {
	return func(s *Service) {
		s.loopback = enabled
	}
}

// NewService returns a discovery service announcing (nodeID, tcpPort) and
// upserting sightings into dir.
func NewService(nodeID string, tcpPort int, dir *peers.Directory, opts ...Option) *Service {
	s := &Service{
		nodeID:   nodeID,
		tcpPort:  tcpPort,
		dir:      dir,
		port:     5000,
		interval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run emits and listens until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.emit(ctx) })
	g.Go(func() error { return s.listen(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("discovery failed: %w", err)
	}
	return nil
}

// emit broadcasts one beacon per interval. Send failures are logged and the
// loop continues; a host without a broadcast route should not take the node
// down.
func (s *Service) emit(ctx context.Context) error {
	conn, err := broadcastConn()
	if err != nil {
		return fmt.Errorf("failed to open beacon socket: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(Beacon{NodeID: s.nodeID, TCPPort: s.tcpPort})
	if err != nil {
		return fmt.Errorf("failed to encode beacon: %w", err)
	}
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: s.port}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := conn.WriteTo(payload, dst); err != nil {
			log.Warnw(ctx, "failed to send beacon", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// listen receives beacons and upserts peers. The socket binds with
// SO_REUSEADDR so several nodes can share the beacon port on one host.
func (s *Service) listen(ctx context.Context) error {
	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind beacon port %d: %w", s.port, err)
	}
	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnw(ctx, "failed to read beacon", "error", err)
			continue
		}
		s.handleBeacon(ctx, buf[:n], addr)
	}
}

func (s *Service) handleBeacon(ctx context.Context, payload []byte, addr net.Addr) {
	var beacon Beacon
	if err := json.Unmarshal(payload, &beacon); err != nil {
		log.Warnw(ctx, "dropping malformed beacon", "from", addr.String(), "error", err)
		return
	}
	if beacon.NodeID == "" || beacon.NodeID == s.nodeID {
		return
	}
	host := senderHost(addr)
	if s.loopback {
		host = "127.0.0.1"
	}
	s.dir.Upsert(peers.Descriptor{
		NodeID: beacon.NodeID,
		Addr:   net.JoinHostPort(host, fmt.Sprint(beacon.TCPPort)),
	})
}

func senderHost(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// broadcastConn opens a UDP socket with SO_BROADCAST set.
func broadcastConn() (net.PacketConn, error) {
	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected socket type %T", pc)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		pc.Close()
		return nil, err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		pc.Close()
		return nil, err
	}
	if serr != nil {
		pc.Close()
		return nil, serr
	}
	return pc, nil
}

// reuseAddr allows several nodes on one host to share the beacon port.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr == nil {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	}); err != nil {
		return err
	}
	return serr
}
