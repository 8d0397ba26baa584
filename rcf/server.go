package rcf

import (
	"context"
	"sync"
	"sync/atomic"
)

// ServerConfig configures a Server's wire stack, grounded on
// share/server.go's construction-time Config knobs (channel endpoints,
// logger, session limits) adapted from SSH-tunnel listeners to RCF
// Listeners.
type ServerConfig struct {
	Chain       *Chain
	BufferPool  *BufferPool
	MaxSessions int
}

// Server is RCF's top-level listener/session-factory wiring (spec.md
// section 4.G), grounded on share/server.go's Server struct and
// share/http_server.go's parallel HTTP listener handling — here a Server
// accepts on any number of Listeners concurrently, creating one Session per
// accepted Transport.
type Server struct {
	ShutdownHelper

	dispatcher *Dispatcher
	pingback   *PingBack
	config     ServerConfig

	nextSessionID uint64

	lock     sync.Mutex
	sessions map[uint64]*Session
}

// NewServer creates a Server dispatching to dispatcher.
func NewServer(logger Logger, dispatcher *Dispatcher, config ServerConfig) *Server {
	if config.BufferPool == nil {
		config.BufferPool = NewBufferPool(16)
	}
	if config.Chain == nil {
		config.Chain = NewChain()
	}
	s := &Server{
		dispatcher: dispatcher,
		config:     config,
		sessions:   make(map[uint64]*Session),
	}
	s.pingback = NewPingBack(logger, 0)
	s.InitShutdownHelper(logger.Fork("server"), s)
	return s
}

func (s *Server) HandleOnceShutdown(completionErr error) error {
	s.lock.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.lock.Unlock()
	for _, sess := range sessions {
		sess.StartShutdown(nil)
	}
	s.pingback.StartShutdown(nil)
	return completionErr
}

// Serve accepts connections from ln until ctx is done or shutdown starts,
// spawning one Session per accepted Transport (spec.md section 4.G).
func (s *Server) Serve(ctx context.Context, ln Listener) error {
	framer := NewBinaryFramer(s.config.BufferPool)
	for {
		t, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.IsStartedShutdown() {
				return nil
			}
			return err
		}
		id := atomic.AddUint64(&s.nextSessionID, 1)
		sess := NewSession(s.Logger, id, t, framer, s.config.Chain, s.dispatcher, s.config.BufferPool)
		s.pingback.Track(sess)
		s.lock.Lock()
		s.sessions[id] = sess
		s.lock.Unlock()

		go func() {
			defer func() {
				s.lock.Lock()
				delete(s.sessions, id)
				s.lock.Unlock()
				s.pingback.Untrack(id)
			}()
			_ = sess.Serve(ctx)
		}()
	}
}

// Sessions returns a snapshot of currently live sessions, keyed by session id.
func (s *Server) Sessions() map[uint64]*Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make(map[uint64]*Session, len(s.sessions))
	for id, sess := range s.sessions {
		out[id] = sess
	}
	return out
}
