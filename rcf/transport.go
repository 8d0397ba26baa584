package rcf

import (
	"context"
	"net"
)

// Transport is RCF's connection abstraction: a byte-stream or datagram
// conduit an Endpoint's Listener/Dialer produces, wrapped with the byte
// counters every chshare connection type carries (spec.md section 4.E,
// grounded on share/channel_conn.go's BasicConn/ConnStats).
type Transport interface {
	net.Conn
	BytesRead() uint64
	BytesWritten() uint64
}

// Listener produces inbound Transports for an Endpoint acting as a Skeleton
// (server) role.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Close() error
	Addr() net.Addr
}

// Dialer produces outbound Transports for an Endpoint acting as a Stub
// (client) role.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// countingConn wraps a net.Conn with atomic byte counters, grounded on
// share/channel_conn.go's BasicConn.
type countingConn struct {
	net.Conn
	read    *counter
	written *counter
}

func newCountingConn(c net.Conn) *countingConn {
	return &countingConn{Conn: c, read: &counter{}, written: &counter{}}
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.read.Add(uint64(n))
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.written.Add(uint64(n))
	return n, err
}

func (c *countingConn) BytesRead() uint64    { return c.read.Get() }
func (c *countingConn) BytesWritten() uint64 { return c.written.Get() }
