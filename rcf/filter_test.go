package rcf

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, chain *Chain, data []byte) []byte {
	t.Helper()
	pool := NewBufferPool(16)
	buf := pool.Acquire(len(data))
	copy(buf.Bytes(), data)

	encoded, err := chain.Encode(buf)
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	decoded, err := chain.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}
	defer decoded.Release()
	out := make([]byte, decoded.Len())
	copy(out, decoded.Bytes())
	return out
}

func TestChainIdentityRoundTrip(t *testing.T) {
	chain := NewChain()
	data := []byte("hello rcf")
	if got := roundTrip(t, chain, data); !bytes.Equal(got, data) {
		t.Fatalf("round trip = %q, want %q", got, data)
	}
}

func TestChainDeflateRoundTrip(t *testing.T) {
	pool := NewBufferPool(16)
	chain := NewChain(NewDeflateFilter(pool, 6))
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)
	if got := roundTrip(t, chain, data); !bytes.Equal(got, data) {
		t.Fatalf("deflate round trip mismatch, got %d bytes want %d", len(got), len(data))
	}
}

func TestChainCryptoRoundTrip(t *testing.T) {
	pool := NewBufferPool(16)
	filter, err := NewCryptoFilter(pool, []byte("a shared secret, at least 32 bytes long"), "test")
	if err != nil {
		t.Fatalf("NewCryptoFilter: %s", err)
	}
	chain := NewChain(filter)
	data := []byte("secret payload")
	if got := roundTrip(t, chain, data); !bytes.Equal(got, data) {
		t.Fatalf("crypto round trip = %q, want %q", got, data)
	}
}

func TestChainComposesFiltersInOrder(t *testing.T) {
	pool := NewBufferPool(16)
	cryptoFilter, err := NewCryptoFilter(pool, []byte("a shared secret, at least 32 bytes long"), "test")
	if err != nil {
		t.Fatalf("NewCryptoFilter: %s", err)
	}
	chain := NewChain(NewDeflateFilter(pool, 6), cryptoFilter)
	data := bytes.Repeat([]byte("compose me "), 20)
	if got := roundTrip(t, chain, data); !bytes.Equal(got, data) {
		t.Fatalf("composed round trip mismatch")
	}
	ids := chain.IDs()
	if len(ids) != 2 || ids[0] != FilterIDCompressionZlib || ids[1] != FilterIDEncryptionChaCha20Poly1305 {
		t.Fatalf("IDs() = %v, want [compression, encryption]", ids)
	}
}

func TestQueryCompatFilterRejected(t *testing.T) {
	pool := NewBufferPool(16)
	buf := pool.Acquire(4)
	f := QueryCompatFilter{}
	_, err := f.Encode(buf)
	if err == nil {
		t.Fatalf("expected QueryCompatFilter.Encode to fail")
	}
	if IsRetryable(err) {
		t.Fatalf("QueryForTransportFilters rejection should not be retryable")
	}
	re, ok := err.(*RemoteError)
	if !ok || re.Kind != ErrorKindProtocol {
		t.Fatalf("err = %v, want ErrorKindProtocol RemoteError", err)
	}
}
