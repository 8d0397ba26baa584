package rcf

import "testing"

func TestBufferPoolAcquireRelease(t *testing.T) {
	pool := NewBufferPool(8)
	buf := pool.Acquire(16)
	if buf.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", buf.Len())
	}
	copy(buf.Bytes(), []byte("0123456789abcdef"))
	if got := string(buf.Bytes()); got != "0123456789abcdef" {
		t.Fatalf("Bytes() = %q", got)
	}
	buf.Release()
}

func TestBufferExpandLeft(t *testing.T) {
	pool := NewBufferPool(4)
	buf := pool.Acquire(10)
	defer buf.Release()
	buf.ExpandLeft(4)
	if buf.Len() != 14 {
		t.Fatalf("Len() after ExpandLeft(4) = %d, want 14", buf.Len())
	}
}

func TestBufferExpandLeftPanicsBeyondMargin(t *testing.T) {
	pool := NewBufferPool(2)
	buf := pool.Acquire(10)
	defer buf.Release()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic expanding beyond reserved margin")
		}
	}()
	buf.ExpandLeft(3)
}

func TestBufferRetainRequiresTwoReleases(t *testing.T) {
	pool := NewBufferPool(0)
	buf := pool.Acquire(4)
	copy(buf.Bytes(), []byte("ABCD"))
	other := buf.Retain()
	buf.Release()
	// other must still see valid data; the backing array has not been
	// recycled because the retain kept the refcount above zero.
	if got := string(other.Bytes()); got != "ABCD" {
		t.Fatalf("Bytes() after sibling release = %q, want ABCD", got)
	}
	other.Release()
}

func TestBufferSliceSharesBacking(t *testing.T) {
	pool := NewBufferPool(0)
	buf := pool.Acquire(8)
	defer buf.Release()
	copy(buf.Bytes(), []byte("abcdefgh"))
	sub := buf.Slice(2, 5)
	defer sub.Release()
	if got := string(sub.Bytes()); got != "cde" {
		t.Fatalf("Slice(2,5).Bytes() = %q, want cde", got)
	}
}
