package rcf

import (
	"bytes"
	"testing"
)

func TestBinaryFramerRoundTrip(t *testing.T) {
	pool := NewBufferPool(8)
	framer := NewBinaryFramer(pool)

	payload := pool.Acquire(5)
	copy(payload.Bytes(), []byte("hello"))

	msg := &Message{
		Header: Header{
			Kind:          MessageKindRequest,
			InterfaceName: "Echo",
			MethodID:      1,
			RequestID:     42,
			SessionID:     7,
			SessionIndex:  1,
			Version:       1,
			Protocol:      SerializationProtocolText,
			FilterIDs:     []FilterID{FilterIDCompressionZlib},
		},
		Payload: payload,
	}

	var wire bytes.Buffer
	if err := framer.WriteMessage(&wire, msg); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}

	got, err := framer.ReadMessage(&wire)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	defer got.Release()

	if got.Header.InterfaceName != "Echo" || got.Header.MethodID != 1 || got.Header.RequestID != 42 {
		t.Fatalf("header mismatch: %+v", got.Header)
	}
	if got.Header.SessionID != 7 || got.Header.SessionIndex != 1 || got.Header.Version != 1 {
		t.Fatalf("header mismatch: %+v", got.Header)
	}
	if len(got.Header.FilterIDs) != 1 || got.Header.FilterIDs[0] != FilterIDCompressionZlib {
		t.Fatalf("FilterIDs = %v", got.Header.FilterIDs)
	}
	if string(got.Payload.Bytes()) != "hello" {
		t.Fatalf("Payload = %q, want hello", got.Payload.Bytes())
	}
}

func TestBinaryFramerCarriesIsErrorFlag(t *testing.T) {
	pool := NewBufferPool(8)
	framer := NewBinaryFramer(pool)

	msg := &Message{
		Header: Header{
			Kind:      MessageKindResponse,
			RequestID: 5,
			IsError:   true,
		},
	}
	var wire bytes.Buffer
	if err := framer.WriteMessage(&wire, msg); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}
	got, err := framer.ReadMessage(&wire)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	defer got.Release()
	if !got.Header.IsError {
		t.Fatalf("IsError did not round trip as true")
	}
}

func TestBinaryFramerOneWayNoFilters(t *testing.T) {
	pool := NewBufferPool(8)
	framer := NewBinaryFramer(pool)

	msg := &Message{
		Header: Header{
			Kind:          MessageKindOneWay,
			InterfaceName: "",
			MethodID:      9,
			RequestID:     1,
		},
	}

	var wire bytes.Buffer
	if err := framer.WriteMessage(&wire, msg); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}
	got, err := framer.ReadMessage(&wire)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	defer got.Release()
	if got.Header.Kind != MessageKindOneWay || got.Header.MethodID != 9 {
		t.Fatalf("header mismatch: %+v", got.Header)
	}
	if got.Payload.Len() != 0 {
		t.Fatalf("Payload.Len() = %d, want 0", got.Payload.Len())
	}
}

func TestBinaryFramerRejectsOversizedFrame(t *testing.T) {
	pool := NewBufferPool(8)
	framer := NewBinaryFramer(pool)

	var lenBuf [4]byte
	lenBuf[0] = 0xFF
	lenBuf[1] = 0xFF
	lenBuf[2] = 0xFF
	lenBuf[3] = 0xFF
	wire := bytes.NewBuffer(lenBuf[:])

	_, err := framer.ReadMessage(wire)
	if err == nil {
		t.Fatalf("expected error for oversized frame")
	}
	re, ok := err.(*RemoteError)
	if !ok || re.Kind != ErrorKindFraming {
		t.Fatalf("err = %v, want ErrorKindFraming RemoteError", err)
	}
}

func TestBinaryFramerTruncatedStreamIsError(t *testing.T) {
	pool := NewBufferPool(8)
	framer := NewBinaryFramer(pool)

	wire := bytes.NewBuffer([]byte{0, 0, 0, 10, 1, 2, 3})
	if _, err := framer.ReadMessage(wire); err == nil {
		t.Fatalf("expected error reading a truncated frame")
	}
}
