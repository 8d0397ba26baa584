package rcf

import (
	"context"
	"fmt"
	"net"
)

// ProxyListener adapts a ProxyBroker back-end registration to the Listener
// interface, so a reverse-tunnelled service can Serve on it exactly like any
// other transport (spec.md section 4.K endpoint type EndpointTypeProxy).
type ProxyListener struct {
	broker *ProxyBroker
	name   string
}

// ListenProxy registers name with broker and returns a Listener that yields
// one Transport per claimed connection request.
func ListenProxy(broker *ProxyBroker, ep Endpoint) (*ProxyListener, error) {
	if ep.Type != EndpointTypeProxy {
		return nil, fmt.Errorf("rcf: ListenProxy requires a proxy endpoint, got %s", ep.Type)
	}
	name := ep.Host
	if err := broker.RegisterBackend(name); err != nil {
		return nil, err
	}
	return &ProxyListener{broker: broker, name: name}, nil
}

func (l *ProxyListener) Accept(ctx context.Context) (Transport, error) {
	req, err := l.broker.GetConnectionRequests(ctx, l.name)
	if err != nil {
		return nil, err
	}
	return l.broker.AcceptBackendConnection(ctx, req)
}

func (l *ProxyListener) Close() error {
	l.broker.UnregisterBackend(l.name)
	return nil
}

func (l *ProxyListener) Addr() net.Addr { return proxyAddr(l.name) }

// proxyAddr satisfies net.Addr for a named proxy back-end.
type proxyAddr string

func (a proxyAddr) Network() string { return "proxy" }
func (a proxyAddr) String() string  { return string(a) }

// ProxyDialer adapts a ProxyBroker front-end request to the Dialer
// interface: dialing asks the broker to pair a fresh Transport with whatever
// back-end is currently registered under name.
type ProxyDialer struct {
	broker *ProxyBroker
	name   string
}

// DialProxy prepares a ProxyDialer for ep (which must be EndpointTypeProxy).
func DialProxy(broker *ProxyBroker, ep Endpoint) (*ProxyDialer, error) {
	if ep.Type != EndpointTypeProxy {
		return nil, fmt.Errorf("rcf: DialProxy requires a proxy endpoint, got %s", ep.Type)
	}
	return &ProxyDialer{broker: broker, name: ep.Host}, nil
}

func (d *ProxyDialer) Dial(ctx context.Context) (Transport, error) {
	a, c := net.Pipe()
	go func() {
		_ = d.broker.MakeConnectionAvailable(ctx, d.name, newCountingConn(c))
	}()
	return newCountingConn(a), nil
}
