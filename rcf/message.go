package rcf

// SerializationProtocol selects the Archive implementation a Message's
// payload was (or should be) encoded with (spec.md section 6).
type SerializationProtocol uint8

const (
	// SerializationProtocolText selects JSONArchive.
	SerializationProtocolText SerializationProtocol = 0
	// SerializationProtocolBinary selects GobArchive.
	SerializationProtocolBinary SerializationProtocol = 1
)

// MessageKind distinguishes the handful of frame purposes that flow over an
// RCF connection (spec.md section 3/6).
type MessageKind uint8

const (
	// MessageKindRequest carries a method invocation.
	MessageKindRequest MessageKind = iota
	// MessageKindResponse carries a method's return values or a RemoteError.
	MessageKindResponse
	// MessageKindOneWay carries a method invocation with no response expected.
	MessageKindOneWay
	// MessageKindPingBack carries a keepalive heartbeat (4.H).
	MessageKindPingBack
)

// Header is RCF's wire header (spec.md section 6): fixed-width fields that
// precede a Message's (possibly filtered) payload.
type Header struct {
	Kind MessageKind

	// InterfaceName and MethodID together select the bound handler
	// (spec.md section 4.B Interface binding).
	InterfaceName string
	MethodID      uint32

	// RequestID correlates a Response to its Request, and is echoed
	// unchanged in one-way and ping-back frames sharing a connection.
	RequestID uint64

	// SessionID and SessionIndex: a Session stamps its own id and index on
	// every Response; ClientStub does not record them and sends zero in both
	// fields, so they do not carry a session across reconnects.
	SessionID    uint64
	SessionIndex uint32

	// Version is the interface/method version the caller is requesting.
	// Session and Dispatcher do not check it, and nothing replies with a
	// VersioningError on its account (see spec.md section 7, section 8
	// scenario S5).
	Version uint32

	// Protocol selects which Archive encoded Payload.
	Protocol SerializationProtocol

	// IsError marks a Response whose Payload is a RemoteError (marshaled with
	// Protocol) rather than the method's normal reply (spec.md section 7:
	// errors travel back as ordinary responses, distinguished by this flag
	// rather than a separate wire message kind).
	IsError bool

	// FilterIDs lists, in application order, the filters the payload has
	// been passed through (spec.md section 4.C); a receiver un-applies
	// them in reverse order.
	FilterIDs []FilterID
}

// Message is a Header plus its (possibly filtered, possibly still encoded)
// payload bytes.
type Message struct {
	Header  Header
	Payload *ByteBuffer
}

// Release releases the Message's payload buffer back to its pool.
func (m *Message) Release() {
	if m.Payload != nil {
		m.Payload.Release()
		m.Payload = nil
	}
}
