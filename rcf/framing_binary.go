package rcf

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BinaryFramer reads and writes Messages on a Transport using RCF's
// length-prefixed binary wire format (spec.md section 6): a fixed header
// followed by the (filtered) payload, the whole record length-prefixed so a
// reader knows how much to buffer before attempting to parse it.
type BinaryFramer struct {
	pool *BufferPool
}

func NewBinaryFramer(pool *BufferPool) *BinaryFramer {
	return &BinaryFramer{pool: pool}
}

// maxFrameSize bounds a single frame to defend against a peer sending a
// bogus huge length prefix and exhausting memory (spec.md section 7 edge
// case: malformed/oversized frame is a FramingError, not a crash).
const maxFrameSize = 64 * 1024 * 1024

// WriteMessage serializes m's header and payload to w as one length-prefixed record.
func (f *BinaryFramer) WriteMessage(w io.Writer, m *Message) error {
	h := &m.Header
	nameBytes := []byte(h.InterfaceName)
	headerLen := 1 + 2 + len(nameBytes) + 4 + 8 + 8 + 4 + 4 + 1 + 1 + 1 + len(h.FilterIDs)
	payloadLen := 0
	if m.Payload != nil {
		payloadLen = m.Payload.Len()
	}

	buf := f.pool.Acquire(4 + headerLen + payloadLen)
	out := buf.Bytes()
	defer buf.Release()

	binary.BigEndian.PutUint32(out[0:4], uint32(headerLen+payloadLen))
	p := out[4:]

	p[0] = byte(h.Kind)
	binary.BigEndian.PutUint16(p[1:3], uint16(len(nameBytes)))
	copy(p[3:3+len(nameBytes)], nameBytes)
	p = p[3+len(nameBytes):]

	binary.BigEndian.PutUint32(p[0:4], h.MethodID)
	binary.BigEndian.PutUint64(p[4:12], h.RequestID)
	binary.BigEndian.PutUint64(p[12:20], h.SessionID)
	binary.BigEndian.PutUint32(p[20:24], h.SessionIndex)
	binary.BigEndian.PutUint32(p[24:28], h.Version)
	p[28] = byte(h.Protocol)
	p[29] = byte(len(h.FilterIDs))
	if h.IsError {
		p[30] = 1
	} else {
		p[30] = 0
	}
	p = p[31:]
	for i, id := range h.FilterIDs {
		p[i] = byte(id)
	}
	p = p[len(h.FilterIDs):]

	if m.Payload != nil {
		copy(p, m.Payload.Bytes())
	}

	_, err := w.Write(out)
	return err
}

// ReadMessage reads one length-prefixed record from r and decodes its header
// and payload. The returned Message's Payload must be Released by the caller.
func (f *BinaryFramer) ReadMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total > maxFrameSize {
		return nil, NewRemoteError(ErrorKindFraming, fmt.Errorf("frame size %d exceeds limit %d", total, maxFrameSize))
	}

	buf := f.pool.Acquire(int(total))
	if _, err := io.ReadFull(r, buf.Bytes()); err != nil {
		buf.Release()
		return nil, err
	}
	data := buf.Bytes()

	if len(data) < 1+2 {
		buf.Release()
		return nil, NewRemoteError(ErrorKindFraming, fmt.Errorf("truncated header"))
	}
	var h Header
	h.Kind = MessageKind(data[0])
	nameLen := int(binary.BigEndian.Uint16(data[1:3]))
	data = data[3:]
	if len(data) < nameLen {
		buf.Release()
		return nil, NewRemoteError(ErrorKindFraming, fmt.Errorf("truncated interface name"))
	}
	h.InterfaceName = string(data[:nameLen])
	data = data[nameLen:]

	if len(data) < 31 {
		buf.Release()
		return nil, NewRemoteError(ErrorKindFraming, fmt.Errorf("truncated fixed header"))
	}
	h.MethodID = binary.BigEndian.Uint32(data[0:4])
	h.RequestID = binary.BigEndian.Uint64(data[4:12])
	h.SessionID = binary.BigEndian.Uint64(data[12:20])
	h.SessionIndex = binary.BigEndian.Uint32(data[20:24])
	h.Version = binary.BigEndian.Uint32(data[24:28])
	h.Protocol = SerializationProtocol(data[28])
	numFilters := int(data[29])
	h.IsError = data[30] != 0
	data = data[31:]
	if len(data) < numFilters {
		buf.Release()
		return nil, NewRemoteError(ErrorKindFraming, fmt.Errorf("truncated filter list"))
	}
	h.FilterIDs = make([]FilterID, numFilters)
	for i := 0; i < numFilters; i++ {
		h.FilterIDs[i] = FilterID(data[i])
	}
	data = data[numFilters:]

	payload := f.pool.Acquire(len(data))
	copy(payload.Bytes(), data)
	buf.Release()

	return &Message{Header: h, Payload: payload}, nil
}
