package rcf

import (
	"fmt"
	"sync/atomic"
)

// counter is a simple atomic byte counter, grounded on
// share/connstats.go's ConnStats pattern.
type counter struct {
	n uint64
}

func (c *counter) Add(n uint64) uint64 { return atomic.AddUint64(&c.n, n) }
func (c *counter) Get() uint64         { return atomic.LoadUint64(&c.n) }

// ConnStats tracks both the lifetime connection count and the currently open
// count for a Listener or Dialer, grounded on share/connstats.go verbatim.
type ConnStats struct {
	count int32
	open  int32
}

// New records a newly created connection and returns its ordinal.
func (c *ConnStats) New() int32 {
	return atomic.AddInt32(&c.count, 1)
}

// Open records a connection transitioning to the open state.
func (c *ConnStats) Open() {
	atomic.AddInt32(&c.open, 1)
}

// Close records a connection transitioning to the closed state.
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.count))
}
