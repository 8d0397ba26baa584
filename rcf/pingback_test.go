package rcf

import (
	"net"
	"testing"
	"time"
)

func newTestSession(t *testing.T, id uint64) (*Session, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	logger := NewLogger("pingback-test", LogLevelError)
	pool := NewBufferPool(8)
	sess := NewSession(logger, id, newCountingConn(local), NewBinaryFramer(pool), NewChain(), NewDispatcher(), pool)
	return sess, remote
}

func TestPingBackTrackAndTouch(t *testing.T) {
	logger := NewLogger("pingback-test", LogLevelError)
	pb := NewPingBack(logger, 50*time.Millisecond)
	defer pb.StartShutdown(nil)

	sess, remote := newTestSession(t, 1)
	defer remote.Close()

	pb.Track(sess)
	// Touching repeatedly should keep the session alive past the base timeout.
	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		pb.Touch(sess.id)
	}
	select {
	case <-sess.ShutdownStartedChan():
		t.Fatalf("session was expired despite being touched")
	default:
	}
	pb.Untrack(sess.id)
}

func TestPingBackExpiresUntouchedSession(t *testing.T) {
	logger := NewLogger("pingback-test", LogLevelError)
	pb := NewPingBack(logger, 20*time.Millisecond)
	defer pb.StartShutdown(nil)

	sess, remote := newTestSession(t, 2)
	defer remote.Close()

	pb.Track(sess)

	select {
	case <-sess.ShutdownStartedChan():
	case <-time.After(time.Second):
		t.Fatalf("session was not expired after missing its heartbeat deadline")
	}
}

func TestPingBackUntrackStopsExpiry(t *testing.T) {
	logger := NewLogger("pingback-test", LogLevelError)
	pb := NewPingBack(logger, 20*time.Millisecond)
	defer pb.StartShutdown(nil)

	sess, remote := newTestSession(t, 3)
	defer remote.Close()

	pb.Track(sess)
	pb.Untrack(sess.id)

	select {
	case <-sess.ShutdownStartedChan():
		t.Fatalf("untracked session should not be expired")
	case <-time.After(100 * time.Millisecond):
	}
}
