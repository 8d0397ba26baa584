package rcf

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

// pingbackEntry is one session's next-expected-heartbeat deadline, the unit
// PingBack orders in its min-heap.
type pingbackEntry struct {
	sessionID uint64
	deadline  time.Time
	index     int
}

// deadlineHeap is a container/heap.Interface ordering pingbackEntries by
// soonest deadline first, grounded on the teacher's own heap use in
// pkg/wstnet (connection-id bookkeeping) generalized to time-ordering.
type deadlineHeap []*pingbackEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x interface{}) {
	e := x.(*pingbackEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// PingBack is the server-side keepalive tracker (spec.md section 4.H): it
// holds a min-heap of per-session next-heartbeat deadlines and expires any
// session whose client stops sending MessageKindPingBack frames within
// timeout, complementing ClientStub's own keepAliveLoop (the client side of
// the same heartbeat contract) grounded on share/client.go's
// SendRequest("ping", ...) usage.
type PingBack struct {
	ShutdownHelper

	timeout time.Duration

	lock     sync.Mutex
	h        deadlineHeap
	entries  map[uint64]*pingbackEntry
	sessions sessionRegistry
	wake     chan struct{}
}

// NewPingBack creates a tracker that expires a session after timeout elapses
// without a heartbeat touch. timeout<=0 selects a 90-second default.
func NewPingBack(logger Logger, timeout time.Duration) *PingBack {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	p := &PingBack{
		timeout: timeout,
		entries: make(map[uint64]*pingbackEntry),
		wake:    make(chan struct{}, 1),
	}
	p.InitShutdownHelper(logger.Fork("pingback"), p)
	go p.run()
	return p
}

func (p *PingBack) HandleOnceShutdown(completionErr error) error {
	return completionErr
}

// Track begins monitoring sess's heartbeat, expiring it via StartShutdown if
// Touch is not called again within the timeout.
func (p *PingBack) Track(sess *Session) {
	p.lock.Lock()
	e := &pingbackEntry{sessionID: sess.id, deadline: time.Now().Add(p.timeout)}
	p.entries[sess.id] = e
	heap.Push(&p.h, e)
	p.lock.Unlock()
	p.wakeLocked()
	p.sessions.store(sess)
}

// Untrack stops monitoring a session, typically once it has already closed.
func (p *PingBack) Untrack(sessionID uint64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if e, ok := p.entries[sessionID]; ok {
		if e.index >= 0 {
			heap.Remove(&p.h, e.index)
		}
		delete(p.entries, sessionID)
	}
	p.sessions.delete(sessionID)
}

// Touch resets sessionID's deadline, acknowledging a received heartbeat or
// any other traffic that should count as proof of liveness.
func (p *PingBack) Touch(sessionID uint64) {
	p.lock.Lock()
	e, ok := p.entries[sessionID]
	if ok {
		e.deadline = time.Now().Add(p.timeout)
		heap.Fix(&p.h, e.index)
	}
	p.lock.Unlock()
	if ok {
		p.wakeLocked()
	}
}

func (p *PingBack) wakeLocked() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *PingBack) run() {
	for {
		p.lock.Lock()
		var wait time.Duration
		if len(p.h) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(p.h[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		p.lock.Unlock()

		select {
		case <-p.ShutdownStartedChan():
			return
		case <-time.After(wait):
		case <-p.wake:
			continue
		}

		p.expireDue()
	}
}

func (p *PingBack) expireDue() {
	now := time.Now()
	for {
		p.lock.Lock()
		if len(p.h) == 0 || p.h[0].deadline.After(now) {
			p.lock.Unlock()
			return
		}
		e := heap.Pop(&p.h).(*pingbackEntry)
		delete(p.entries, e.sessionID)
		sess := p.sessions.load(e.sessionID)
		p.lock.Unlock()

		if sess != nil {
			sess.WLogf("expiring session %d: no heartbeat within %s", e.sessionID, p.timeout)
			sess.StartShutdown(NewRemoteError(ErrorKindTransport, fmt.Errorf("heartbeat deadline exceeded")))
		}
	}
}

// sessionRegistry is a tiny concurrent-safe map PingBack uses to recover a
// *Session from its id when a deadline fires.
type sessionRegistry struct {
	lock sync.Mutex
	m    map[uint64]*Session
}

func (r *sessionRegistry) store(s *Session) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.m == nil {
		r.m = make(map[uint64]*Session)
	}
	r.m[s.id] = s
}

func (r *sessionRegistry) delete(id uint64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.m, id)
}

func (r *sessionRegistry) load(id uint64) *Session {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.m[id]
}
