package rcf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type sessionContextKey struct{}
type requestIDContextKey struct{}

// SessionFromContext recovers the Session handling the call in ctx, for a
// MethodHandler that wants to defer its response (spec.md section 4.G step 4).
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok
}

// RequestIDFromContext recovers the RequestID of the call in ctx.
func RequestIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(requestIDContextKey{}).(uint64)
	return id, ok
}

// ErrCallDeferred is returned by a MethodHandler that has called
// Session.Defer and will complete the call asynchronously; handleRequest
// recognizes it and waits on the RemoteCallContext instead of treating it as
// a failure.
var ErrCallDeferred = fmt.Errorf("rcf: call deferred")

// SessionState mirrors spec.md section 4.G's per-connection server state
// machine.
type SessionState int

const (
	SessionStateConnected SessionState = iota
	SessionStateClosing
	SessionStateClosed
)

// PerformanceData is the server-side counterpart of ClientProgress
// (SPEC_FULL.md section 12 / original_source RCF/include/RCF/PerformanceData.hpp):
// per-session counters a server can expose for diagnostics.
type PerformanceData struct {
	BytesSent        uint64
	BytesReceived    uint64
	RequestsServed   uint64
	DeferredPending  int32
}

// deferredCall tracks an in-flight RemoteCallContext awaiting completion
// (spec.md section 4.G step 4 / SPEC_FULL.md section 12 "deferred
// completion"): a handler may park the call and answer it later from another
// goroutine instead of returning synchronously.
type deferredCall struct {
	requestID uint64
	done      chan struct{}
	payload   *ByteBuffer
	protocol  SerializationProtocol
	err       error
}

// RemoteCallContext is handed to a MethodHandler that wants to defer its
// response (spec.md section 4.G step 4): call Defer to obtain one, then
// later call Complete/Fail from any goroutine to unblock the waiting client.
type RemoteCallContext struct {
	session   *Session
	requestID uint64
	call      *deferredCall
}

// Defer marks the in-flight call with requestID as deferred and
// returns a RemoteCallContext the handler can complete asynchronously.
func (s *Session) Defer(requestID uint64) *RemoteCallContext {
	dc := &deferredCall{requestID: requestID, done: make(chan struct{})}
	s.lock.Lock()
	s.deferred[requestID] = dc
	atomic.AddInt32(&s.perf.DeferredPending, 1)
	s.lock.Unlock()
	return &RemoteCallContext{session: s, requestID: requestID, call: dc}
}

// Complete supplies the deferred call's successful result.
func (rcc *RemoteCallContext) Complete(archive Archive, reply interface{}) error {
	payload, err := archive.Marshal(reply)
	if err != nil {
		return rcc.Fail(err)
	}
	buf := rcc.session.pool.Acquire(len(payload))
	copy(buf.Bytes(), payload)
	encoded, err := rcc.session.chain.Encode(buf)
	if err != nil {
		return rcc.Fail(err)
	}
	rcc.call.payload = encoded
	rcc.call.protocol = archive.Protocol()
	close(rcc.call.done)
	return nil
}

// Fail supplies the deferred call's error result.
func (rcc *RemoteCallContext) Fail(err error) error {
	rcc.call.err = err
	close(rcc.call.done)
	return err
}

// Session is RCF's server-side per-connection state machine (spec.md
// section 4.G), grounded on share/server_ssh_session.go's/share/ssh_session.go's
// per-connection state shape, generalized from an SSH-channel-multiplexed
// session to one frame-oriented RCF session speaking BinaryFramer directly
// over a single Transport.
type Session struct {
	ShutdownHelper

	id         uint64
	index      uint32
	transport  Transport
	framer     *BinaryFramer
	chain      *Chain
	dispatcher *Dispatcher
	pool       *BufferPool

	lock     sync.Mutex
	state    SessionState
	deferred map[uint64]*deferredCall
	perf     PerformanceData
}

// NewSession wraps transport as a server-side Session identified by id.
func NewSession(logger Logger, id uint64, transport Transport, framer *BinaryFramer, chain *Chain, dispatcher *Dispatcher, pool *BufferPool) *Session {
	s := &Session{
		id:         id,
		transport:  transport,
		framer:     framer,
		chain:      chain,
		dispatcher: dispatcher,
		pool:       pool,
		deferred:   make(map[uint64]*deferredCall),
	}
	s.InitShutdownHelper(logger.Fork("session[%d]", id), s)
	return s
}

func (s *Session) HandleOnceShutdown(completionErr error) error {
	s.lock.Lock()
	s.state = SessionStateClosed
	s.lock.Unlock()
	if err := s.transport.Close(); err != nil && completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// Serve runs the Session's request loop until the transport closes, ctx is
// done, or shutdown is requested (spec.md section 4.G: Receive -> Dispatch ->
// Filter -> Send, repeating per frame).
func (s *Session) Serve(ctx context.Context) error {
	defer s.StartShutdown(nil)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ShutdownStartedChan():
			return nil
		default:
		}

		req, err := s.framer.ReadMessage(s.transport)
		if err != nil {
			return err
		}
		atomic.AddUint64(&s.perf.BytesReceived, uint64(req.Payload.Len()))

		if req.Header.Kind == MessageKindPingBack {
			req.Release()
			continue
		}

		go s.handleRequest(ctx, req)
	}
}

func (s *Session) handleRequest(ctx context.Context, req *Message) {
	defer req.Release()
	atomic.AddUint64(&s.perf.RequestsServed, 1)

	decoded, err := s.chain.Decode(req.Payload.Retain())
	if err != nil {
		s.sendError(req, err)
		return
	}
	defer decoded.Release()

	callCtx := context.WithValue(context.WithValue(ctx, sessionContextKey{}, s), requestIDContextKey{}, req.Header.RequestID)
	archive := ArchiveForProtocol(req.Header.Protocol)
	respPayload, dispatchErr := s.dispatcher.Dispatch(callCtx, req.Header.InterfaceName, req.Header.MethodID, archive, decoded.Bytes())

	if dispatchErr == ErrCallDeferred {
		s.awaitDeferred(ctx, req)
		return
	}
	if dispatchErr != nil {
		s.sendError(req, dispatchErr)
		return
	}

	if req.Header.Kind == MessageKindOneWay {
		return
	}

	buf := s.pool.Acquire(len(respPayload))
	copy(buf.Bytes(), respPayload)
	encoded, err := s.chain.Encode(buf)
	if err != nil {
		s.sendError(req, err)
		return
	}
	s.sendResponse(req, encoded, req.Header.Protocol)
}

// awaitDeferred blocks until the RemoteCallContext the handler obtained via
// Session.Defer is completed or failed, then sends the resulting response
// (spec.md section 4.G step 4).
func (s *Session) awaitDeferred(ctx context.Context, req *Message) {
	s.lock.Lock()
	dc, ok := s.deferred[req.Header.RequestID]
	s.lock.Unlock()
	if !ok {
		s.sendError(req, NewRemoteError(ErrorKindApplication, fmt.Errorf("handler deferred request %d but registered no context", req.Header.RequestID)))
		return
	}

	select {
	case <-dc.done:
	case <-ctx.Done():
		return
	case <-s.ShutdownStartedChan():
		return
	}

	s.lock.Lock()
	delete(s.deferred, req.Header.RequestID)
	atomic.AddInt32(&s.perf.DeferredPending, -1)
	s.lock.Unlock()

	if dc.err != nil {
		s.sendError(req, dc.err)
		return
	}
	if req.Header.Kind == MessageKindOneWay {
		dc.payload.Release()
		return
	}
	s.sendResponse(req, dc.payload, dc.protocol)
}

func (s *Session) sendResponse(req *Message, payload *ByteBuffer, protocol SerializationProtocol) {
	s.sendResponseKind(req, payload, protocol, false)
}

func (s *Session) sendResponseKind(req *Message, payload *ByteBuffer, protocol SerializationProtocol, isError bool) {
	defer payload.Release()
	resp := &Message{
		Header: Header{
			Kind:         MessageKindResponse,
			RequestID:    req.Header.RequestID,
			SessionID:    s.id,
			SessionIndex: s.index,
			Protocol:     protocol,
			FilterIDs:    s.chain.IDs(),
			IsError:      isError,
		},
		Payload: payload,
	}
	atomic.AddUint64(&s.perf.BytesSent, uint64(payload.Len()))
	if err := s.framer.WriteMessage(s.transport, resp); err != nil {
		s.ELogf("failed writing response for request %d: %s", req.Header.RequestID, err)
	}
}

// sendError reports dispatchErr to the caller as a Response carrying a
// RemoteError payload, marshaled with the same archive the request used
// (spec.md section 7: errors travel back as ordinary responses, not as a
// distinct wire message kind).
func (s *Session) sendError(req *Message, dispatchErr error) {
	archive := ArchiveForProtocol(req.Header.Protocol)
	re, ok := dispatchErr.(*RemoteError)
	if !ok {
		re = NewRemoteError(ErrorKindApplication, dispatchErr)
	}
	payload, err := archive.Marshal(re)
	if err != nil {
		s.ELogf("failed marshaling error response for request %d: %s", req.Header.RequestID, err)
		return
	}
	buf := s.pool.Acquire(len(payload))
	copy(buf.Bytes(), payload)
	encoded, encErr := s.chain.Encode(buf)
	if encErr != nil {
		s.ELogf("failed encoding error response for request %d: %s", req.Header.RequestID, encErr)
		return
	}
	s.sendResponseKind(req, encoded, req.Header.Protocol, true)
}

// Performance returns a snapshot of this session's counters.
func (s *Session) Performance() PerformanceData {
	return PerformanceData{
		BytesSent:       atomic.LoadUint64(&s.perf.BytesSent),
		BytesReceived:   atomic.LoadUint64(&s.perf.BytesReceived),
		RequestsServed:  atomic.LoadUint64(&s.perf.RequestsServed),
		DeferredPending: atomic.LoadInt32(&s.perf.DeferredPending),
	}
}
