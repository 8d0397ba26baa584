package rcf

import (
	"context"
	"fmt"
	"sync"

	"github.com/prep/socketpair"
)

// ProxyBroker implements RCF's proxy-endpoint reverse-tunnel service
// (spec.md section 4.K): a back-end registers under a name and long-polls
// for connection requests; a front-end client asks the broker to connect to
// that name, and the broker pairs the two, splicing an in-process socketpair
// between them. Generalized from share/proxy.go's TCPProxy (SSH-channel
// carrying a JSON-described skeleton endpoint) and
// share/server_ssh_session.go's reverse-channel accept path, replacing the
// SSH-channel transport with a long-poll request/connect handshake so the
// broker has no transport dependency of its own.
type ProxyBroker struct {
	logger Logger

	lock     sync.Mutex
	backends map[string]*proxyBackend
}

type proxyBackend struct {
	name     string
	requests chan *proxyConnectionRequest
}

// proxyConnectionRequest represents one pending front-end connection request
// waiting to be claimed by a back-end's GetConnectionRequests poll.
type proxyConnectionRequest struct {
	id       uint64
	frontend Transport
	claimed  chan struct{}
}

// NewProxyBroker creates an empty broker.
func NewProxyBroker(logger Logger) *ProxyBroker {
	return &ProxyBroker{logger: logger.Fork("proxy-broker"), backends: make(map[string]*proxyBackend)}
}

// RegisterBackend registers name as available for reverse connections,
// returning an error if already registered (spec.md section 4.K edge case:
// duplicate back-end registration is rejected, not silently replaced).
func (b *ProxyBroker) RegisterBackend(name string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if _, exists := b.backends[name]; exists {
		return NewRemoteError(ErrorKindProtocol, fmt.Errorf("proxy back-end %q already registered", name))
	}
	b.backends[name] = &proxyBackend{name: name, requests: make(chan *proxyConnectionRequest, 16)}
	b.logger.ILogf("registered back-end %q", name)
	return nil
}

// UnregisterBackend removes name from the broker; pending requests for it
// are left to time out on the caller's context.
func (b *ProxyBroker) UnregisterBackend(name string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.backends, name)
	b.logger.ILogf("unregistered back-end %q", name)
}

// GetConnectionRequests long-polls for the next pending connection request
// addressed to name, blocking until one arrives or ctx is done. This is the
// back-end half of the handshake.
func (b *ProxyBroker) GetConnectionRequests(ctx context.Context, name string) (*proxyConnectionRequest, error) {
	b.lock.Lock()
	be, ok := b.backends[name]
	b.lock.Unlock()
	if !ok {
		return nil, NewRemoteError(ErrorKindProtocol, fmt.Errorf("no such proxy back-end %q", name))
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case req := <-be.requests:
		return req, nil
	}
}

// MakeConnectionAvailable is the front-end half: it asks the broker to pair
// frontend with the next back-end connection servicing name, splicing the
// two halves together via an in-process socketpair (DESIGN.md Transports —
// github.com/prep/socketpair, grounded on share/loop_stub_endpoint.go and
// share/socks_skeleton_endpoint.go's identical use) once the back-end claims
// the request.
func (b *ProxyBroker) MakeConnectionAvailable(ctx context.Context, name string, frontend Transport) error {
	b.lock.Lock()
	be, ok := b.backends[name]
	b.lock.Unlock()
	if !ok {
		return NewRemoteError(ErrorKindProtocol, fmt.Errorf("no such proxy back-end %q", name))
	}

	req := &proxyConnectionRequest{frontend: frontend, claimed: make(chan struct{})}
	select {
	case be.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.claimed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AcceptBackendConnection is called by the back-end after it receives a
// proxyConnectionRequest from GetConnectionRequests: it creates a local
// socketpair, hands one half back to the caller to use as the back-end's
// Transport to the real service, and splices the other half to the waiting
// front-end connection, unblocking MakeConnectionAvailable.
func (b *ProxyBroker) AcceptBackendConnection(ctx context.Context, req *proxyConnectionRequest) (Transport, error) {
	a, c, err := socketpair.New("unix")
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	go func() {
		defer c.Close()
		buf := make([]byte, 32*1024)
		errc := make(chan error, 2)
		go func() { _, e := copyLoop(c, req.frontend, buf); errc <- e }()
		go func() { _, e := copyLoop(req.frontend, c, make([]byte, 32*1024)); errc <- e }()
		<-errc
	}()
	close(req.claimed)
	return newCountingConn(a), nil
}

func copyLoop(dst, src interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}, buf []byte) (int64, error) {
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}
}
