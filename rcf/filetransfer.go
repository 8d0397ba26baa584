package rcf

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

// FileTransferChunk is one resumable range of a file transfer (spec.md
// section 4.J File-transfer service).
type FileTransferChunk struct {
	TransferID string
	Offset     int64
	Data       []byte
	EOF        bool
}

// transferState tracks one in-progress upload's resumption point and
// destination writer.
type transferState struct {
	lock   sync.Mutex
	offset int64
	w      io.WriterAt
	done   bool
}

// FileTransferService is RCF's chunked, resumable, bandwidth-limited file
// transfer subsystem (spec.md section 4.J), grounded on share/client.go's
// and share/loop_stub_endpoint.go's io.Copy-based bridging idiom,
// generalized from an unthrottled byte stream to explicit chunk messages so
// a transfer can resume at an arbitrary offset after a dropped connection.
// Bandwidth is governed per-transfer by a golang.org/x/time/rate limiter
// (SPEC_FULL.md section 11), matching the per-connection-quota shape the
// corpus's rate-limited proxies use.
type FileTransferService struct {
	logger Logger

	bytesPerSecond rate.Limit
	burst          int

	lock      sync.Mutex
	transfers map[string]*transferState
}

// NewFileTransferService creates a service whose transfers are each
// governed by an independent token bucket of the given rate and burst size.
func NewFileTransferService(logger Logger, bytesPerSecond rate.Limit, burst int) *FileTransferService {
	if burst <= 0 {
		burst = 64 * 1024
	}
	return &FileTransferService{
		logger:         logger.Fork("filetransfer"),
		bytesPerSecond: bytesPerSecond,
		burst:          burst,
		transfers:      make(map[string]*transferState),
	}
}

// Begin registers transferID as writing into w, starting (or resuming) at
// resumeOffset (spec.md section 4.J: a transfer interrupted mid-stream
// resumes by re-sending Begin with the last acknowledged offset rather than
// restarting from zero).
func (s *FileTransferService) Begin(transferID string, w io.WriterAt, resumeOffset int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.transfers[transferID] = &transferState{offset: resumeOffset, w: w}
}

// Accept applies chunk to its transfer, enforcing in-order delivery (spec.md
// section 4.J edge case: a chunk arriving at the wrong offset is rejected as
// a ResourceError rather than silently accepted out of order) and releasing
// the transfer's resources once EOF is seen.
func (s *FileTransferService) Accept(ctx context.Context, limiter *rate.Limiter, chunk FileTransferChunk) error {
	s.lock.Lock()
	t, ok := s.transfers[chunk.TransferID]
	s.lock.Unlock()
	if !ok {
		return NewRemoteError(ErrorKindResource, fmt.Errorf("unknown transfer %q", chunk.TransferID))
	}

	if limiter != nil {
		if err := limiter.WaitN(ctx, len(chunk.Data)); err != nil {
			return NewRemoteError(ErrorKindTransport, err)
		}
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if t.done {
		return NewRemoteError(ErrorKindResource, fmt.Errorf("transfer %q already complete", chunk.TransferID))
	}
	if chunk.Offset != t.offset {
		return NewRemoteError(ErrorKindResource, fmt.Errorf("transfer %q: expected offset %d, got %d", chunk.TransferID, t.offset, chunk.Offset))
	}
	if len(chunk.Data) > 0 {
		if _, err := t.w.WriteAt(chunk.Data, chunk.Offset); err != nil {
			return NewRemoteError(ErrorKindResource, err)
		}
		t.offset += int64(len(chunk.Data))
	}
	if chunk.EOF {
		t.done = true
		s.lock.Lock()
		delete(s.transfers, chunk.TransferID)
		s.lock.Unlock()
	}
	return nil
}

// NewLimiter creates a token-bucket limiter using this service's configured
// rate and burst, suitable for passing to Accept per active transfer.
func (s *FileTransferService) NewLimiter() *rate.Limiter {
	if s.bytesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(s.bytesPerSecond, s.burst)
}

// Offset reports the next expected offset for transferID, or -1 if unknown.
func (s *FileTransferService) Offset(transferID string) int64 {
	s.lock.Lock()
	t, ok := s.transfers[transferID]
	s.lock.Unlock()
	if !ok {
		return -1
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.offset
}
