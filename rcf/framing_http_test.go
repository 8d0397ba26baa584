package rcf

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestHTTPFramerRoundTrip(t *testing.T) {
	logger := NewLogger("http-test", LogLevelError)
	pool := NewBufferPool(8)
	chain := NewChain()
	dispatcher := NewDispatcher()
	binding := NewInterfaceBinding("Echo")
	binding.Bind(1, echoHandler)
	dispatcher.Register(binding)

	framer := NewHTTPFramer(logger, pool, chain, dispatcher)
	server := httptest.NewServer(framer.Handler())
	defer server.Close()

	transport := NewHTTPClientTransport(nil, server.URL)
	out, err := transport.Call(context.Background(), "Echo", 1, SerializationProtocolText, []byte("ping"))
	if err != nil {
		t.Fatalf("Call: %s", err)
	}
	if string(out) != "ping" {
		t.Fatalf("Call result = %q, want ping", out)
	}
}

func TestHTTPFramerUnknownInterfaceReturnsRemoteError(t *testing.T) {
	logger := NewLogger("http-test", LogLevelError)
	pool := NewBufferPool(8)
	chain := NewChain()
	dispatcher := NewDispatcher()

	framer := NewHTTPFramer(logger, pool, chain, dispatcher)
	server := httptest.NewServer(framer.Handler())
	defer server.Close()

	transport := NewHTTPClientTransport(nil, server.URL)
	_, err := transport.Call(context.Background(), "Nope", 1, SerializationProtocolText, []byte("ping"))
	if err == nil {
		t.Fatalf("expected an error calling an unregistered interface")
	}
	re, ok := err.(*RemoteError)
	if !ok || re.Kind != ErrorKindProtocol {
		t.Fatalf("err = %v, want ErrorKindProtocol RemoteError", err)
	}
}

func TestHTTPFramerMissingInterfaceHeaderIsBadRequest(t *testing.T) {
	logger := NewLogger("http-test", LogLevelError)
	pool := NewBufferPool(8)
	chain := NewChain()
	dispatcher := NewDispatcher()
	framer := NewHTTPFramer(logger, pool, chain, dispatcher)
	server := httptest.NewServer(framer.Handler())
	defer server.Close()

	resp, err := server.Client().Post(server.URL, "application/octet-stream", nil)
	if err != nil {
		t.Fatalf("Post: %s", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
