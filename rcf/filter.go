package rcf

import "fmt"

// FilterID names a Filter implementation so it can be listed in a Header and
// looked up again on the receiving side (spec.md section 4.C).
type FilterID uint8

const (
	// FilterIDIdentity performs no transformation; used as a sentinel.
	FilterIDIdentity FilterID = iota
	// FilterIDCompressionZlib is DeflateFilter.
	FilterIDCompressionZlib
	// FilterIDEncryptionChaCha20Poly1305 is the record-layer CryptoFilter.
	FilterIDEncryptionChaCha20Poly1305
	// FilterIDHTTPConnect marks a connection as tunnelled through an HTTP
	// CONNECT proxy; it performs no payload transformation, and is recorded in
	// the chain's IDs only (spec.md section 4.C-vi).
	FilterIDHTTPConnect
	// FilterIDQueryCompat is the legacy QueryForTransportFilters stub
	// (spec.md section 9 Open Question (i), SPEC_FULL.md section 12).
	FilterIDQueryCompat
)

// Filter is a single ordered transform in the filter chain that sits between
// a Message's Archive-encoded payload and the framer (spec.md section 4.C).
// Encode is applied in chain order when sending; Decode is applied in
// reverse order when receiving.
type Filter interface {
	ID() FilterID

	// Encode transforms buf in place or returns a new ByteBuffer; buf is
	// Released by the caller regardless of which is returned.
	Encode(buf *ByteBuffer) (*ByteBuffer, error)

	// Decode reverses Encode.
	Decode(buf *ByteBuffer) (*ByteBuffer, error)
}

// maxFilterRecursion bounds how many filters a single Chain.Encode or
// Chain.Decode call applies; a longer chain fails with a Filter RemoteError,
// matching spec.md section 9's "coroutine-like recursion limiter" note.
const maxFilterRecursion = 32

// Chain is an ordered sequence of Filters applied to a Message payload.
type Chain struct {
	filters []Filter
}

// NewChain builds a Chain in application order; Encode walks it forwards,
// Decode walks it backwards.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// IDs returns the FilterIDs of the chain's filters in application order, for
// recording in a Header.
func (c *Chain) IDs() []FilterID {
	ids := make([]FilterID, len(c.filters))
	for i, f := range c.filters {
		ids[i] = f.ID()
	}
	return ids
}

// Encode applies every filter in the chain, in order, consuming and
// Releasing each intermediate buffer.
func (c *Chain) Encode(buf *ByteBuffer) (*ByteBuffer, error) {
	cur := buf
	for i, f := range c.filters {
		if i >= maxFilterRecursion {
			cur.Release()
			return nil, NewRemoteError(ErrorKindFilter, fmt.Errorf("filter chain exceeds recursion limit"))
		}
		next, err := f.Encode(cur)
		if cur != next {
			cur.Release()
		}
		if err != nil {
			return nil, NewRemoteError(ErrorKindFilter, err)
		}
		cur = next
	}
	return cur, nil
}

// Decode applies the chain's filters in reverse order, matching how Encode
// applied them.
func (c *Chain) Decode(buf *ByteBuffer) (*ByteBuffer, error) {
	cur := buf
	for i := len(c.filters) - 1; i >= 0; i-- {
		if len(c.filters)-i > maxFilterRecursion {
			cur.Release()
			return nil, NewRemoteError(ErrorKindFilter, fmt.Errorf("filter chain exceeds recursion limit"))
		}
		next, err := c.filters[i].Decode(cur)
		if cur != next {
			cur.Release()
		}
		if err != nil {
			return nil, NewRemoteError(ErrorKindFilter, err)
		}
		cur = next
	}
	return cur, nil
}

// QueryCompatFilter is the legacy QueryForTransportFilters compatibility
// built-in (original_source RCF/include/RCF/FilterService.hpp; SPEC_FULL.md
// section 12 / spec.md section 9 Open Question (i)): both its Encode and
// Decode fail with a Protocol RemoteError. Session does not use it and no
// method id is reserved for QueryForTransportFilters, so such a request is
// dispatched like any other and meets the Dispatcher's unknown
// interface/method error.
type QueryCompatFilter struct{}

func (QueryCompatFilter) ID() FilterID { return FilterIDQueryCompat }

func (QueryCompatFilter) Encode(buf *ByteBuffer) (*ByteBuffer, error) {
	return buf, NewRemoteError(ErrorKindProtocol, fmt.Errorf("QueryForTransportFilters is not supported"))
}

func (QueryCompatFilter) Decode(buf *ByteBuffer) (*ByteBuffer, error) {
	return buf, NewRemoteError(ErrorKindProtocol, fmt.Errorf("QueryForTransportFilters is not supported"))
}
