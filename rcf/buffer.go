package rcf

import "sync"

// ByteBuffer is RCF's core data structure (spec.md section 3/4.A): a
// refcounted view into a shared backing array, with a reserved left margin so
// framers and filters can prepend headers without a copy. Copies of a
// ByteBuffer share the same backing array and refcount; Release must be
// called exactly once per copy obtained from the pool.
type ByteBuffer struct {
	pool   *BufferPool
	backing *bufferBacking
	// off is the offset of this view's data within backing.buf.
	off int
	// length is the number of usable bytes in this view.
	length int
}

type bufferBacking struct {
	buf      []byte
	refCount int
	lock     sync.Mutex
}

// BufferPool recycles backing arrays sized to marginSize + a data capacity,
// avoiding per-call allocation on the hot path (spec.md section 4.A).
type BufferPool struct {
	marginSize int
	pool       sync.Pool
}

// NewBufferPool creates a pool whose buffers reserve marginSize bytes at the
// front for header prepending.
func NewBufferPool(marginSize int) *BufferPool {
	p := &BufferPool{marginSize: marginSize}
	p.pool.New = func() interface{} {
		return &bufferBacking{}
	}
	return p
}

// Acquire returns a ByteBuffer with at least capacity usable data bytes
// following the pool's reserved left margin.
func (p *BufferPool) Acquire(capacity int) *ByteBuffer {
	backing := p.pool.Get().(*bufferBacking)
	total := p.marginSize + capacity
	if cap(backing.buf) < total {
		backing.buf = make([]byte, total)
	} else {
		backing.buf = backing.buf[:total]
	}
	backing.refCount = 1
	return &ByteBuffer{
		pool:    p,
		backing: backing,
		off:     p.marginSize,
		length:  capacity,
	}
}

// Retain increments the refcount and returns a second handle to the same
// backing storage and data window; both handles must be Released independently.
func (b *ByteBuffer) Retain() *ByteBuffer {
	b.backing.lock.Lock()
	b.backing.refCount++
	b.backing.lock.Unlock()
	return &ByteBuffer{pool: b.pool, backing: b.backing, off: b.off, length: b.length}
}

// Release decrements the refcount, returning the backing array to the pool
// once the last handle releases it.
func (b *ByteBuffer) Release() {
	if b.backing == nil {
		return
	}
	b.backing.lock.Lock()
	b.backing.refCount--
	done := b.backing.refCount == 0
	b.backing.lock.Unlock()
	if done && b.pool != nil {
		b.pool.pool.Put(b.backing)
	}
	b.backing = nil
}

// Bytes returns the usable data window of this view. The slice is only valid
// until Release is called.
func (b *ByteBuffer) Bytes() []byte {
	return b.backing.buf[b.off : b.off+b.length]
}

// Len returns the number of usable data bytes in this view.
func (b *ByteBuffer) Len() int {
	return b.length
}

// ExpandLeft grows this view's window backward into the reserved margin by n
// bytes, for a filter or framer prepending a header. It panics if n exceeds
// the available margin, matching the pool's contract that margin growth is a
// programmer error, not a runtime condition to recover from.
func (b *ByteBuffer) ExpandLeft(n int) {
	if n > b.off {
		panic("rcf: ByteBuffer.ExpandLeft exceeds reserved margin")
	}
	b.off -= n
	b.length += n
}

// Slice returns a sub-view over [from, to) of this view's current data
// window, sharing the same backing storage. The returned view must be
// Released independently of its parent.
func (b *ByteBuffer) Slice(from, to int) *ByteBuffer {
	b.backing.lock.Lock()
	b.backing.refCount++
	b.backing.lock.Unlock()
	return &ByteBuffer{pool: b.pool, backing: b.backing, off: b.off + from, length: to - from}
}
