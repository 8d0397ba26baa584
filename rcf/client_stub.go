package rcf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/jpillora/sizestr"
)

// ClientStub is RCF's client-side call engine (spec.md section 4.F): it owns
// a Dialer, runs the Connect/reconnect state machine, and multiplexes
// concurrent Call invocations over the single resulting Transport, matching
// each Response to its Request by RequestID. Grounded on share/client.go's
// Client/connectionLoop shape, generalized from an SSH-tunnel transport to a
// generic RCF Transport.
type ClientStub struct {
	ShutdownHelper

	dialer Dialer
	pool   *BufferPool
	framer *BinaryFramer
	chain  *Chain
	config ClientStubConfig

	lock          sync.Mutex
	transport     Transport
	pending       map[uint64]chan *Message
	nextRequestID uint64

	sessionID    uint64
	sessionIndex uint32

	progress ClientProgress
}

// ClientStubConfig governs reconnect policy, grounded on share/client.go's
// Config.MaxRetryCount/MaxRetryInterval fields.
type ClientStubConfig struct {
	MaxRetryCount    int
	MaxRetryInterval time.Duration
	KeepAlive        time.Duration
}

// ClientProgress is the client-side counterpart of PerformanceData
// (original_source RCF/include/RCF/PerformanceData.hpp; DESIGN.md/SPEC_FULL.md
// section 12): lightweight counters a caller can poll mid-call.
type ClientProgress struct {
	BytesSent     uint64
	BytesReceived uint64
	CallsSent     uint64
	CallsReceived uint64
}

// NewClientStub creates a ClientStub that will dial through dialer, applying
// chain to every outbound payload (and its reverse on every inbound one).
func NewClientStub(logger Logger, dialer Dialer, pool *BufferPool, chain *Chain, config ClientStubConfig) *ClientStub {
	if config.MaxRetryInterval < time.Second {
		config.MaxRetryInterval = 5 * time.Minute
	}
	c := &ClientStub{
		dialer:  dialer,
		pool:    pool,
		framer:  NewBinaryFramer(pool),
		chain:   chain,
		config:  config,
		pending: make(map[uint64]chan *Message),
	}
	c.InitShutdownHelper(logger, c)
	return c
}

// HandleOnceShutdown closes the underlying transport exactly once.
func (c *ClientStub) HandleOnceShutdown(completionErr error) error {
	c.lock.Lock()
	t := c.transport
	c.lock.Unlock()
	if t != nil {
		if err := t.Close(); err != nil && completionErr == nil {
			completionErr = err
		}
	}
	return completionErr
}

// Connect performs the initial dial and starts the background reconnect
// loop; it blocks until the first connection succeeds or ctx is done,
// matching share/client.go's DoOnceActivate/Start split.
func (c *ClientStub) Connect(ctx context.Context) error {
	return c.DoOnceActivate(func() error {
		t, err := c.dialer.Dial(ctx)
		if err != nil {
			return err
		}
		c.setTransport(t)
		go c.readLoop(t)
		if c.config.KeepAlive > 0 {
			go c.keepAliveLoop()
		}
		go c.reconnectLoop(ctx)
		return nil
	}, true)
}

func (c *ClientStub) setTransport(t Transport) {
	c.lock.Lock()
	c.transport = t
	c.lock.Unlock()
}

func (c *ClientStub) getTransport() Transport {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.transport
}

// reconnectLoop re-dials with jpillora/backoff after the current transport's
// read loop observes a disconnect, grounded on share/client.go's connectionLoop.
func (c *ClientStub) reconnectLoop(ctx context.Context) {
	b := &backoff.Backoff{Max: c.config.MaxRetryInterval}
	for !c.IsStartedShutdown() {
		<-c.disconnected()
		if c.IsStartedShutdown() {
			return
		}
		attempt := int(b.Attempt())
		if c.config.MaxRetryCount >= 0 && attempt >= c.config.MaxRetryCount {
			c.StartShutdown(fmt.Errorf("rcf: exceeded max retry count %d", c.config.MaxRetryCount))
			return
		}
		d := b.Duration()
		c.ILogf("reconnecting in %s (attempt %d)", d, attempt)
		select {
		case <-time.After(d):
		case <-c.ShutdownStartedChan():
			return
		}
		t, err := c.dialer.Dial(ctx)
		if err != nil {
			c.DLogf("reconnect failed: %s", err)
			continue
		}
		b.Reset()
		c.failPending(NewRemoteError(ErrorKindTransport, fmt.Errorf("reconnected, previous calls abandoned")))
		c.setTransport(t)
		go c.readLoop(t)
	}
}

// disconnected returns a channel closed once when the current transport's
// read loop exits; reconnectLoop blocks on it between (re)connect attempts.
func (c *ClientStub) disconnected() <-chan struct{} {
	ch := make(chan struct{})
	t := c.getTransport()
	go func() {
		if t != nil {
			<-waitClosed(t)
		}
		close(ch)
	}()
	return ch
}

func waitClosed(t Transport) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		one := make([]byte, 1)
		for {
			if _, err := t.Read(one); err != nil {
				close(ch)
				return
			}
		}
	}()
	return ch
}

func (c *ClientStub) keepAliveLoop() {
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.ShutdownStartedChan():
			return
		case <-ticker.C:
			t := c.getTransport()
			if t != nil {
				_ = c.framer.WriteMessage(t, &Message{Header: Header{Kind: MessageKindPingBack}})
			}
		}
	}
}

func (c *ClientStub) readLoop(t Transport) {
	for {
		m, err := c.framer.ReadMessage(t)
		if err != nil {
			return
		}
		if m.Payload != nil {
			atomic.AddUint64(&c.progress.BytesReceived, uint64(m.Payload.Len()))
		}
		atomic.AddUint64(&c.progress.CallsReceived, 1)
		if m.Header.Kind == MessageKindPingBack {
			m.Release()
			continue
		}
		c.lock.Lock()
		ch, ok := c.pending[m.Header.RequestID]
		if ok {
			delete(c.pending, m.Header.RequestID)
		}
		c.lock.Unlock()
		if ok {
			ch <- m
		} else {
			m.Release()
		}
	}
}

// failPending closes every pending call's response channel so Call
// callers waiting on it unblock with a transport error. err is currently
// advisory only (future versions may thread it through as the Call error
// instead of the generic one Call produces on seeing a closed channel).
func (c *ClientStub) failPending(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

// Call performs the Serialize/Send/Receive phases of spec.md section 4.F: it
// marshals args with archive, passes the result through the ClientStub's
// filter chain, frames and sends a request, then blocks for the matching
// response, un-filters and unmarshals it into reply.
func (c *ClientStub) Call(ctx context.Context, interfaceName string, methodID uint32, version uint32, archive Archive, args interface{}, reply interface{}) error {
	t := c.getTransport()
	if t == nil {
		return NewRemoteError(ErrorKindTransport, fmt.Errorf("not connected"))
	}

	payload, err := archive.Marshal(args)
	if err != nil {
		return NewRemoteError(ErrorKindApplication, err)
	}
	buf := c.pool.Acquire(len(payload))
	copy(buf.Bytes(), payload)

	encoded, err := c.chain.Encode(buf)
	if err != nil {
		return err
	}

	requestID := atomic.AddUint64(&c.nextRequestID, 1)
	respCh := make(chan *Message, 1)
	c.lock.Lock()
	c.pending[requestID] = respCh
	sessionID, sessionIndex := c.sessionID, c.sessionIndex
	c.lock.Unlock()

	req := &Message{
		Header: Header{
			Kind:          MessageKindRequest,
			InterfaceName: interfaceName,
			MethodID:      methodID,
			RequestID:     requestID,
			SessionID:     sessionID,
			SessionIndex:  sessionIndex,
			Version:       version,
			Protocol:      archive.Protocol(),
			FilterIDs:     c.chain.IDs(),
		},
		Payload: encoded,
	}
	atomic.AddUint64(&c.progress.CallsSent, 1)
	atomic.AddUint64(&c.progress.BytesSent, uint64(encoded.Len()))
	c.DLogf("sending request id=%d interface=%s method=%d size=%s", requestID, interfaceName, methodID, sizestr.ToString(int64(encoded.Len())))
	err = c.framer.WriteMessage(t, req)
	req.Release()
	if err != nil {
		c.lock.Lock()
		delete(c.pending, requestID)
		c.lock.Unlock()
		return NewRemoteError(ErrorKindTransport, err)
	}

	select {
	case <-ctx.Done():
		c.lock.Lock()
		delete(c.pending, requestID)
		c.lock.Unlock()
		return ctx.Err()
	case resp, ok := <-respCh:
		if !ok {
			return NewRemoteError(ErrorKindTransport, fmt.Errorf("connection lost before response"))
		}
		defer resp.Release()
		decoded, err := c.chain.Decode(resp.Payload.Retain())
		if err != nil {
			return err
		}
		defer decoded.Release()
		respArchive := ArchiveForProtocol(resp.Header.Protocol)
		if resp.Header.IsError {
			var re RemoteError
			if err := respArchive.Unmarshal(decoded.Bytes(), &re); err != nil {
				return NewRemoteError(ErrorKindApplication, err)
			}
			return &re
		}
		if err := respArchive.Unmarshal(decoded.Bytes(), reply); err != nil {
			return NewRemoteError(ErrorKindApplication, err)
		}
		return nil
	}
}

// Progress returns a snapshot of this stub's call/byte counters.
func (c *ClientStub) Progress() ClientProgress {
	return ClientProgress{
		BytesSent:     atomic.LoadUint64(&c.progress.BytesSent),
		BytesReceived: atomic.LoadUint64(&c.progress.BytesReceived),
		CallsSent:     atomic.LoadUint64(&c.progress.CallsSent),
		CallsReceived: atomic.LoadUint64(&c.progress.CallsReceived),
	}
}
