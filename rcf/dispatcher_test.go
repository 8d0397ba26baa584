package rcf

import (
	"context"
	"testing"
)

func echoHandler(ctx context.Context, archive Archive, raw []byte) ([]byte, error) {
	return raw, nil
}

func TestDispatcherDispatchesBoundMethod(t *testing.T) {
	d := NewDispatcher()
	binding := NewInterfaceBinding("Echo")
	binding.Bind(1, echoHandler)
	d.Register(binding)

	archive := ArchiveForProtocol(SerializationProtocolText)
	out, err := d.Dispatch(context.Background(), "Echo", 1, archive, []byte("ping"))
	if err != nil {
		t.Fatalf("Dispatch: %s", err)
	}
	if string(out) != "ping" {
		t.Fatalf("Dispatch result = %q, want ping", out)
	}
}

func TestDispatcherUnknownInterface(t *testing.T) {
	d := NewDispatcher()
	archive := ArchiveForProtocol(SerializationProtocolText)
	_, err := d.Dispatch(context.Background(), "Nope", 1, archive, nil)
	if err == nil {
		t.Fatalf("expected error for unregistered interface")
	}
	re, ok := err.(*RemoteError)
	if !ok || re.Kind != ErrorKindProtocol {
		t.Fatalf("err = %v, want ErrorKindProtocol RemoteError", err)
	}
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := NewDispatcher()
	binding := NewInterfaceBinding("Echo")
	binding.Bind(1, echoHandler)
	d.Register(binding)

	archive := ArchiveForProtocol(SerializationProtocolText)
	_, err := d.Dispatch(context.Background(), "Echo", 99, archive, nil)
	if err == nil {
		t.Fatalf("expected error for unbound method id")
	}
}

func TestDispatcherUnregister(t *testing.T) {
	d := NewDispatcher()
	binding := NewInterfaceBinding("Echo")
	binding.Bind(1, echoHandler)
	d.Register(binding)
	d.Unregister("Echo")

	archive := ArchiveForProtocol(SerializationProtocolText)
	if _, err := d.Dispatch(context.Background(), "Echo", 1, archive, nil); err == nil {
		t.Fatalf("expected error after Unregister")
	}
}
