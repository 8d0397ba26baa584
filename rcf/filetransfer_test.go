package rcf

import (
	"bytes"
	"context"
	"testing"

	"golang.org/x/time/rate"
)

type memWriterAt struct {
	buf []byte
}

func (w *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(w.buf) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[off:end], p)
	return len(p), nil
}

func TestFileTransferServiceAcceptsInOrderChunks(t *testing.T) {
	logger := NewLogger("filetransfer-test", LogLevelError)
	svc := NewFileTransferService(logger, 0, 0)

	dst := &memWriterAt{}
	svc.Begin("xfer-1", dst, 0)

	ctx := context.Background()
	if err := svc.Accept(ctx, nil, FileTransferChunk{TransferID: "xfer-1", Offset: 0, Data: []byte("hello ")}); err != nil {
		t.Fatalf("Accept chunk 1: %s", err)
	}
	if err := svc.Accept(ctx, nil, FileTransferChunk{TransferID: "xfer-1", Offset: 6, Data: []byte("world"), EOF: true}); err != nil {
		t.Fatalf("Accept chunk 2: %s", err)
	}
	if !bytes.Equal(dst.buf, []byte("hello world")) {
		t.Fatalf("written data = %q, want %q", dst.buf, "hello world")
	}
	if svc.Offset("xfer-1") != -1 {
		t.Fatalf("Offset after EOF = %d, want -1 (transfer removed)", svc.Offset("xfer-1"))
	}
}

func TestFileTransferServiceRejectsOutOfOrderChunk(t *testing.T) {
	logger := NewLogger("filetransfer-test", LogLevelError)
	svc := NewFileTransferService(logger, 0, 0)
	dst := &memWriterAt{}
	svc.Begin("xfer-2", dst, 0)

	err := svc.Accept(context.Background(), nil, FileTransferChunk{TransferID: "xfer-2", Offset: 5, Data: []byte("oops")})
	if err == nil {
		t.Fatalf("expected error for out-of-order chunk")
	}
	re, ok := err.(*RemoteError)
	if !ok || re.Kind != ErrorKindResource {
		t.Fatalf("err = %v, want ErrorKindResource RemoteError", err)
	}
}

func TestFileTransferServiceResumesAtOffset(t *testing.T) {
	logger := NewLogger("filetransfer-test", LogLevelError)
	svc := NewFileTransferService(logger, 0, 0)
	dst := &memWriterAt{buf: []byte("hello ")}
	svc.Begin("xfer-3", dst, 6)

	if got := svc.Offset("xfer-3"); got != 6 {
		t.Fatalf("Offset after resume Begin = %d, want 6", got)
	}
	if err := svc.Accept(context.Background(), nil, FileTransferChunk{TransferID: "xfer-3", Offset: 6, Data: []byte("world"), EOF: true}); err != nil {
		t.Fatalf("Accept: %s", err)
	}
	if !bytes.Equal(dst.buf, []byte("hello world")) {
		t.Fatalf("written data = %q", dst.buf)
	}
}

func TestFileTransferServiceUnknownTransfer(t *testing.T) {
	logger := NewLogger("filetransfer-test", LogLevelError)
	svc := NewFileTransferService(logger, 0, 0)
	err := svc.Accept(context.Background(), nil, FileTransferChunk{TransferID: "nope", Offset: 0})
	if err == nil {
		t.Fatalf("expected error for unknown transfer id")
	}
}

func TestFileTransferServiceRateLimiter(t *testing.T) {
	logger := NewLogger("filetransfer-test", LogLevelError)
	svc := NewFileTransferService(logger, rate.Limit(1024), 1024)
	limiter := svc.NewLimiter()
	if limiter == nil {
		t.Fatalf("expected a non-nil limiter when bytesPerSecond > 0")
	}

	unlimited := NewFileTransferService(logger, 0, 0)
	if unlimited.NewLimiter() != nil {
		t.Fatalf("expected nil limiter when bytesPerSecond is 0")
	}
}
