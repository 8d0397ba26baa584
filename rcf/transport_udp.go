package rcf

import (
	"context"
	"fmt"
	"net"
	"time"
)

// udpPacketConn adapts a connected *net.UDPConn to the Transport interface;
// RCF's UDP endpoints are always used in a connected-socket style (one
// Transport per peer), matching the connection-oriented session model of
// spec.md section 4.G rather than raw unconnected datagram I/O.
type udpPacketConn struct {
	*countingConn
}

// DialUDP connects to ep (which must be EndpointTypeUDP) and returns a Transport.
func DialUDP(ctx context.Context, ep Endpoint, logger Logger) (Transport, error) {
	if ep.Type != EndpointTypeUDP {
		return nil, fmt.Errorf("rcf: DialUDP requires a udp endpoint, got %s", ep.Type)
	}
	addr := fmt.Sprintf("%s:%s", ep.Host, ep.Port)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	logger.DLogf("udp connected to %s", addr)
	return newCountingConn(conn), nil
}

// UDPListener listens for UDP datagrams on ep and demultiplexes them by
// source address into per-peer Transports, since RCF sessions expect a
// connection-oriented conduit (spec.md section 4.E).
type UDPListener struct {
	logger Logger
	pc     *net.UDPConn
	accept chan Transport
	peers  map[string]*udpPeerConn
	stats  ConnStats
}

// ListenUDP binds ep (which must be EndpointTypeUDP).
func ListenUDP(ep Endpoint, logger Logger) (*UDPListener, error) {
	if ep.Type != EndpointTypeUDP {
		return nil, fmt.Errorf("rcf: ListenUDP requires a udp endpoint, got %s", ep.Type)
	}
	addr := fmt.Sprintf("%s:%s", ep.Host, ep.Port)
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	l := &UDPListener{
		logger: logger.Fork("udp-listener[%s]", addr),
		pc:     pc,
		accept: make(chan Transport, 16),
		peers:  make(map[string]*udpPeerConn),
	}
	go l.readLoop()
	return l, nil
}

func (l *UDPListener) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := l.pc.ReadFromUDP(buf)
		if err != nil {
			close(l.accept)
			return
		}
		key := raddr.String()
		peer, ok := l.peers[key]
		if !ok {
			peer = newUDPPeerConn(l.pc, raddr)
			l.peers[key] = peer
			l.stats.New()
			l.stats.Open()
			l.logger.DLogf("new udp peer %s, stats=%s", key, l.stats.String())
			l.accept <- newCountingConn(peer)
		}
		peer.deliver(buf[:n])
	}
}

func (l *UDPListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case t, ok := <-l.accept:
		if !ok {
			return nil, NewRemoteError(ErrorKindTransport, fmt.Errorf("udp listener closed"))
		}
		return t, nil
	}
}

func (l *UDPListener) Close() error   { return l.pc.Close() }
func (l *UDPListener) Addr() net.Addr { return l.pc.LocalAddr() }

// udpPeerConn is a net.Conn view over one peer's datagrams multiplexed
// through a shared *net.UDPConn.
type udpPeerConn struct {
	pc    *net.UDPConn
	raddr *net.UDPAddr
	in    chan []byte
	done  chan struct{}
}

func newUDPPeerConn(pc *net.UDPConn, raddr *net.UDPAddr) *udpPeerConn {
	return &udpPeerConn{pc: pc, raddr: raddr, in: make(chan []byte, 64), done: make(chan struct{})}
}

func (c *udpPeerConn) deliver(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case c.in <- cp:
	case <-c.done:
	}
}

func (c *udpPeerConn) Read(p []byte) (int, error) {
	select {
	case b := <-c.in:
		return copy(p, b), nil
	case <-c.done:
		return 0, fmt.Errorf("rcf: udp peer connection closed")
	}
}

func (c *udpPeerConn) Write(p []byte) (int, error) { return c.pc.WriteToUDP(p, c.raddr) }

func (c *udpPeerConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func (c *udpPeerConn) LocalAddr() net.Addr  { return c.pc.LocalAddr() }
func (c *udpPeerConn) RemoteAddr() net.Addr { return c.raddr }

// Deadlines are not meaningful on the demultiplexed per-peer view; the
// underlying shared *net.UDPConn is never put into deadline mode.
func (c *udpPeerConn) SetDeadline(t time.Time) error      { return nil }
func (c *udpPeerConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *udpPeerConn) SetWriteDeadline(t time.Time) error { return nil }
