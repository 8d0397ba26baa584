package rcf

import (
	"context"
	"sync"
)

// OnceActivateHandler is a function that is called exactly once with shutdown
// paused, to activate the object that supports shutdown. If it returns nil,
// the object will be activated. If it returns an error, the object will not
// be activated, and shutdown will be immediately started. If shutdown has
// already started before DoOnceActivate is called, this function will not be
// invoked.
type OnceActivateHandler func() error

// OnceShutdownHandler is implemented by the object managed by a ShutdownHelper.
type OnceShutdownHandler interface {
	// HandleOnceShutdown is called exactly once, in its own goroutine. It
	// should take completionError as an advisory completion value, actually
	// shut down, then return the real completion value. It is never called
	// while shutdown is paused.
	HandleOnceShutdown(completionError error) error
}

// AsyncShutdowner is implemented by objects that provide asynchronous
// shutdown capability: RCF's Session, ClientStub, Server and PingBack satisfy
// this through their embedded ShutdownHelper; transports, listeners, dialers
// and the broker and file-transfer services do not.
type AsyncShutdowner interface {
	// StartShutdown schedules asynchronous shutdown of the object. If the
	// object has already been scheduled for shutdown, it has no effect.
	// completionErr is an advisory error (or nil) used as the completion
	// status from WaitShutdown(); an implementation may use it or return
	// something else.
	StartShutdown(completionErr error)

	// ShutdownDoneChan returns a chan that is closed after shutdown is
	// complete. After it closes, IsDoneShutdown() is guaranteed true and
	// WaitShutdown will not block.
	ShutdownDoneChan() <-chan struct{}

	// IsDoneShutdown reports whether the object has completely shut down.
	IsDoneShutdown() bool

	// WaitShutdown blocks until the object is completely shut down, and
	// returns the final completion status.
	WaitShutdown() error
}

// ShutdownHelper is RCF's base lifecycle mechanism: pause-count-gated,
// exactly-once asynchronous shutdown with parent/child wiring. It is the
// object-lifecycle realization of the cooperative, single-completion
// semantics called for by the filter chain's recursion limiter and by
// Session/ClientStub teardown.
type ShutdownHelper struct {
	// Logger is used for log output from this helper.
	Logger

	// Lock is a general-purpose fine-grained mutex; derived objects may
	// reuse it for their own state.
	Lock sync.Mutex

	shutdownHandler OnceShutdownHandler

	shutdownPauseCount int
	isActivated        bool

	isScheduledShutdown bool
	isStartedShutdown   bool
	isDoneShutdown      bool

	shutdownErr error

	shutdownStartedChan     chan struct{}
	shutdownHandlerDoneChan chan struct{}
	shutdownDoneChan        chan struct{}

	wg sync.WaitGroup
}

// InitShutdownHelper initializes a new ShutdownHelper in place.
func (h *ShutdownHelper) InitShutdownHelper(logger Logger, shutdownHandler OnceShutdownHandler) {
	h.Logger = logger
	h.shutdownHandler = shutdownHandler
	h.shutdownStartedChan = make(chan struct{})
	h.shutdownHandlerDoneChan = make(chan struct{})
	h.shutdownDoneChan = make(chan struct{})
}

// NewShutdownHelper creates a new ShutdownHelper on the heap.
func NewShutdownHelper(logger Logger, shutdownHandler OnceShutdownHandler) *ShutdownHelper {
	h := &ShutdownHelper{}
	h.InitShutdownHelper(logger, shutdownHandler)
	return h
}

// asyncDoStartedShutdown starts background processing of shutdown *after*
// h.isStartedShutdown has already been set true and h.shutdownErr set to the
// advisory completion error.
func (h *ShutdownHelper) asyncDoStartedShutdown() {
	h.DLogf("->shutdownStarted")
	close(h.shutdownStartedChan)
	go func() {
		h.shutdownErr = h.shutdownHandler.HandleOnceShutdown(h.shutdownErr)
		h.DLogf("->shutdownHandlerDone")
		close(h.shutdownHandlerDoneChan)
		h.wg.Wait()
		h.isDoneShutdown = true
		h.DLogf("->shutdownDone")
		close(h.shutdownDoneChan)
	}()
}

// PauseShutdown increments the shutdown pause count, preventing shutdown from
// starting. Returns an error if shutdown has already started. Pausing does
// not prevent shutdown from being scheduled with StartShutdown, it only
// prevents it from actually beginning. Every successful PauseShutdown must
// pair with a ResumeShutdown.
func (h *ShutdownHelper) PauseShutdown() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	if h.isStartedShutdown {
		return h.Errorf("shutdown already started; cannot pause")
	}
	h.shutdownPauseCount++
	return nil
}

// IsActivated reports whether this helper has been activated.
func (h *ShutdownHelper) IsActivated() bool {
	return h.isActivated
}

// Activate sets the activated flag. It is a no-op if already activated, and
// fails if shutdown has already started.
func (h *ShutdownHelper) Activate() error {
	h.Lock.Lock()
	defer h.Lock.Unlock()
	if !h.isActivated {
		if h.isStartedShutdown {
			return h.Errorf("cannot activate; shutdown already initiated")
		}
		h.isActivated = true
	}
	return nil
}

// DoOnceActivate activates the object exactly once:
//
//	if already activated, returns nil
//	if not activated and shutdown already started: returns an error,
//	  optionally waiting for shutdown to complete first
//	otherwise: pauses shutdown, invokes onceActivateHandler, resumes
//	  shutdown, activates on success or starts shutdown on failure
func (h *ShutdownHelper) DoOnceActivate(onceActivateHandler OnceActivateHandler, waitOnFail bool) error {
	var err error
	h.Lock.Lock()
	if h.isActivated {
		h.Lock.Unlock()
		return nil
	}
	if h.isStartedShutdown {
		h.Lock.Unlock()
		if waitOnFail {
			err = h.WaitShutdown()
		}
		if err == nil {
			err = h.Errorf("shutdown already started; cannot activate")
		}
		return err
	}
	h.shutdownPauseCount++
	h.Lock.Unlock()
	err = onceActivateHandler()
	if err == nil {
		err = h.Activate()
	}
	if err != nil {
		h.StartShutdown(err)
	}
	h.ResumeShutdown()
	if err != nil && waitOnFail {
		h.WaitShutdown()
	}
	return err
}

// ResumeShutdown decrements the shutdown pause count; if it reaches zero and
// shutdown has been scheduled, shutdown begins.
func (h *ShutdownHelper) ResumeShutdown() {
	h.Lock.Lock()
	if h.shutdownPauseCount < 1 {
		h.Lock.Unlock()
		h.Panic("ResumeShutdown before PauseShutdown")
		return
	}
	h.shutdownPauseCount--
	doShutdownNow := h.shutdownPauseCount == 0 && h.isScheduledShutdown && !h.isStartedShutdown
	if doShutdownNow {
		h.isStartedShutdown = true
	}
	h.Lock.Unlock()

	if doShutdownNow {
		h.asyncDoStartedShutdown()
	}
}

// ResumeAndShutdown decrements the pause count and shuts down synchronously,
// suitable for use in a defer after PauseShutdown.
func (h *ShutdownHelper) ResumeAndShutdown(completionErr error) error {
	h.ResumeShutdown()
	return h.Shutdown(completionErr)
}

// ResumeAndWaitShutdown decrements the pause count and waits for shutdown,
// suitable for use in a defer after PauseShutdown.
func (h *ShutdownHelper) ResumeAndWaitShutdown(completionErr error) error {
	h.ResumeShutdown()
	return h.WaitShutdown()
}

// ShutdownOnContext begins background monitoring of ctx, and asynchronously
// starts shutdown with ctx.Err() if it completes before shutdown otherwise
// begins. It does not block.
func (h *ShutdownHelper) ShutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-h.shutdownStartedChan:
		case <-ctx.Done():
			h.StartShutdown(ctx.Err())
		}
	}()
}

// IsScheduledShutdown reports whether StartShutdown has been called.
func (h *ShutdownHelper) IsScheduledShutdown() bool {
	return h.isScheduledShutdown
}

// IsStartedShutdown reports whether shutdown has begun.
func (h *ShutdownHelper) IsStartedShutdown() bool {
	return h.isStartedShutdown
}

// IsDoneShutdown reports whether shutdown is complete.
func (h *ShutdownHelper) IsDoneShutdown() bool {
	return h.isDoneShutdown
}

// ShutdownWG returns the WaitGroup children can Add/Done against to defer
// completion of shutdown.
func (h *ShutdownHelper) ShutdownWG() *sync.WaitGroup {
	return &h.wg
}

// ShutdownStartedChan returns a channel closed as soon as shutdown starts.
func (h *ShutdownHelper) ShutdownStartedChan() <-chan struct{} {
	return h.shutdownStartedChan
}

// ShutdownHandlerDoneChan returns a channel closed after HandleOnceShutdown
// returns, before children are shut down and waited for.
func (h *ShutdownHelper) ShutdownHandlerDoneChan() <-chan struct{} {
	return h.shutdownHandlerDoneChan
}

// ShutdownDoneChan returns a channel closed after shutdown is fully done.
func (h *ShutdownHelper) ShutdownDoneChan() <-chan struct{} {
	return h.shutdownDoneChan
}

// WaitShutdown waits for shutdown to complete and returns the final status.
// It does not itself initiate shutdown.
func (h *ShutdownHelper) WaitShutdown() error {
	<-h.shutdownDoneChan
	return h.shutdownErr
}

// Shutdown initiates shutdown if not already started, waits for completion,
// and returns the final status.
func (h *ShutdownHelper) Shutdown(completionError error) error {
	h.StartShutdown(completionError)
	return h.WaitShutdown()
}

// StartShutdown schedules asynchronous shutdown. If already scheduled, this
// has no effect. If shutdown is paused, actually starting is deferred until
// the pause count reaches zero.
func (h *ShutdownHelper) StartShutdown(completionErr error) {
	var doShutdownNow bool
	h.Lock.Lock()
	if !h.isScheduledShutdown {
		if h.isStartedShutdown {
			h.Lock.Unlock()
			h.Panic("shutdown started before scheduled")
			return
		}
		h.shutdownErr = completionErr
		h.isScheduledShutdown = true
		doShutdownNow = h.shutdownPauseCount == 0
		h.isStartedShutdown = doShutdownNow
	}
	h.Lock.Unlock()

	if doShutdownNow {
		h.asyncDoStartedShutdown()
	}
}

// Close shuts down with a nil advisory completion status and returns the
// final completion status.
func (h *ShutdownHelper) Close() error {
	h.DLogf("Close()")
	return h.Shutdown(nil)
}

// AddShutdownChildChan waits on childDoneChan before this helper's shutdown
// is considered complete. The helper takes no action to close the channel;
// that is the caller's responsibility.
func (h *ShutdownHelper) AddShutdownChildChan(childDoneChan <-chan struct{}) {
	h.DLogf("AddShutdownChildChan()")
	h.wg.Add(1)
	go func() {
		<-childDoneChan
		h.wg.Done()
	}()
}

// AddShutdownChild registers a child to be actively shut down by this helper
// after HandleOnceShutdown returns, using that return value as the child's
// advisory completion status.
func (h *ShutdownHelper) AddShutdownChild(child AsyncShutdowner) {
	h.DLogf("AddShutdownChild()")
	h.wg.Add(1)
	go func() {
		select {
		case <-child.ShutdownDoneChan():
		case <-h.shutdownHandlerDoneChan:
			child.StartShutdown(h.shutdownErr)
			child.WaitShutdown()
		}
		h.wg.Done()
	}()
}
