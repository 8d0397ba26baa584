package rcf

import (
	"context"
	"testing"
	"time"
)

func TestProxyListenerDialerRoundTrip(t *testing.T) {
	logger := NewLogger("proxy-test", LogLevelError)
	broker := NewProxyBroker(logger)
	ep := Endpoint{Type: EndpointTypeProxy, Host: "backend-a", Port: 1}

	ln, err := ListenProxy(broker, ep)
	if err != nil {
		t.Fatalf("ListenProxy: %s", err)
	}
	defer ln.Close()

	if ln.Addr().String() != "backend-a" || ln.Addr().Network() != "proxy" {
		t.Fatalf("Addr() = %v", ln.Addr())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	backendConnCh := make(chan Transport, 1)
	errCh := make(chan error, 1)
	go func() {
		t, err := ln.Accept(ctx)
		if err != nil {
			errCh <- err
			return
		}
		backendConnCh <- t
		errCh <- nil
	}()

	dialer, err := DialProxy(broker, ep)
	if err != nil {
		t.Fatalf("DialProxy: %s", err)
	}
	frontConn, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %s", err)
	}
	defer frontConn.Close()

	if err := <-errCh; err != nil {
		t.Fatalf("Accept: %s", err)
	}
	backConn := <-backendConnCh
	defer backConn.Close()

	if _, err := frontConn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %s", err)
	}
	buf := make([]byte, 4)
	backConn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := backConn.Read(buf); err != nil {
		t.Fatalf("Read: %s", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want ping", buf)
	}
}

func TestProxyBrokerRejectsDuplicateRegistration(t *testing.T) {
	logger := NewLogger("proxy-test", LogLevelError)
	broker := NewProxyBroker(logger)
	if err := broker.RegisterBackend("dup"); err != nil {
		t.Fatalf("first RegisterBackend: %s", err)
	}
	if err := broker.RegisterBackend("dup"); err == nil {
		t.Fatalf("expected error re-registering the same back-end name")
	}
}

func TestProxyBrokerUnknownBackend(t *testing.T) {
	logger := NewLogger("proxy-test", LogLevelError)
	broker := NewProxyBroker(logger)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := broker.GetConnectionRequests(ctx, "nope"); err == nil {
		t.Fatalf("expected error polling an unregistered back-end")
	}
}
