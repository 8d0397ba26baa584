package rcf

import (
	"context"
	"fmt"
	"net"
)

// TCPListener is the Listener for an Endpoint of EndpointTypeTCP, grounded on
// share/tcp_skeleton_endpoint.go's getListener/StartListening/Accept shape.
type TCPListener struct {
	logger Logger
	ln     net.Listener
	stats  ConnStats
}

// ListenTCP binds ep (which must be EndpointTypeTCP) and returns a TCPListener.
func ListenTCP(ep Endpoint, logger Logger) (*TCPListener, error) {
	if ep.Type != EndpointTypeTCP {
		return nil, fmt.Errorf("rcf: ListenTCP requires a tcp endpoint, got %s", ep.Type)
	}
	addr := fmt.Sprintf("%s:%s", ep.Host, ep.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	return &TCPListener{logger: logger.Fork("tcp-listener[%s]", addr), ln: ln}, nil
}

func (l *TCPListener) Accept(ctx context.Context) (Transport, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- result{c, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, NewRemoteError(ErrorKindTransport, r.err)
		}
		l.stats.New()
		l.stats.Open()
		l.logger.DLogf("accepted connection from %s, stats=%s", r.conn.RemoteAddr(), l.stats.String())
		return newCountingConn(r.conn), nil
	}
}

func (l *TCPListener) Close() error { return l.ln.Close() }
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// TCPDialer is the Dialer for an Endpoint of EndpointTypeTCP, grounded on
// share/tcp_stub_endpoint.go's Dial/DialAndServe shape.
type TCPDialer struct {
	logger Logger
	addr   string
	stats  ConnStats
}

// DialTCP prepares a TCPDialer for ep (which must be EndpointTypeTCP).
func DialTCP(ep Endpoint, logger Logger) (*TCPDialer, error) {
	if ep.Type != EndpointTypeTCP {
		return nil, fmt.Errorf("rcf: DialTCP requires a tcp endpoint, got %s", ep.Type)
	}
	addr := fmt.Sprintf("%s:%s", ep.Host, ep.Port)
	return &TCPDialer{logger: logger.Fork("tcp-dialer[%s]", addr), addr: addr}, nil
}

func (d *TCPDialer) Dial(ctx context.Context) (Transport, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	d.stats.New()
	d.stats.Open()
	d.logger.DLogf("dialed %s, stats=%s", d.addr, d.stats.String())
	return newCountingConn(conn), nil
}
