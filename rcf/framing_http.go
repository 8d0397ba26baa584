package rcf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jpillora/requestlog"
	"github.com/tomasen/realip"
)

// Header names for HTTP framing, where the call's fields travel as HTTP
// headers rather than as a binary header (spec.md section 6). Only the
// interface, method-id and protocol headers are sent and read;
// headerSessionID, headerSessionIndex and headerVersion are declared but
// unused, so HTTP calls carry no session identity, and no cookies are set
// or echoed.
const (
	headerSessionID    = "X-Rcf-Session-Id"
	headerSessionIndex = "X-Rcf-Session-Index"
	headerInterface    = "X-Rcf-Interface"
	headerMethodID     = "X-Rcf-Method-Id"
	headerVersion      = "X-Rcf-Version"
	headerProtocol     = "X-Rcf-Protocol"
)

// HTTPFramer adapts a Dispatcher to net/http, so an RCF service can be
// reached over plain HTTP/HTTPS (spec.md section 4.K endpoint types
// EndpointTypeHTTP/EndpointTypeHTTPS) in addition to the binary framing
// used by TCP/UDP/Unix transports. Grounded on share/http_server.go's
// net/http.Handler wiring, with per-request access logging via
// github.com/jpillora/requestlog (as share/http_server.go itself uses) and
// real-client-IP resolution via github.com/tomasen/realip for requests that
// arrive through a reverse proxy.
type HTTPFramer struct {
	pool       *BufferPool
	chain      *Chain
	dispatcher *Dispatcher
	logger     Logger
}

// NewHTTPFramer creates an HTTPFramer dispatching to dispatcher.
func NewHTTPFramer(logger Logger, pool *BufferPool, chain *Chain, dispatcher *Dispatcher) *HTTPFramer {
	return &HTTPFramer{pool: pool, chain: chain, dispatcher: dispatcher, logger: logger.Fork("http-framer")}
}

// Handler returns an http.Handler serving RCF calls, wrapped in a
// requestlog.Handler access logger.
func (f *HTTPFramer) Handler() http.Handler {
	return requestlog.Wrap(http.HandlerFunc(f.serve))
}

func (f *HTTPFramer) serve(w http.ResponseWriter, r *http.Request) {
	clientIP := realip.FromRequest(r)

	interfaceName := r.Header.Get(headerInterface)
	if interfaceName == "" {
		http.Error(w, "missing "+headerInterface, http.StatusBadRequest)
		return
	}
	methodID64, err := strconv.ParseUint(r.Header.Get(headerMethodID), 10, 32)
	if err != nil {
		http.Error(w, "invalid "+headerMethodID, http.StatusBadRequest)
		return
	}
	protocol := SerializationProtocolText
	if p := r.Header.Get(headerProtocol); p != "" {
		pv, perr := strconv.ParseUint(p, 10, 8)
		if perr != nil {
			http.Error(w, "invalid "+headerProtocol, http.StatusBadRequest)
			return
		}
		protocol = SerializationProtocol(pv)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize))
	if err != nil {
		http.Error(w, "failed reading request body", http.StatusBadRequest)
		return
	}

	buf := f.pool.Acquire(len(body))
	copy(buf.Bytes(), body)
	decoded, err := f.chain.Decode(buf)
	if err != nil {
		f.writeError(w, protocol, err)
		return
	}
	defer decoded.Release()

	archive := ArchiveForProtocol(protocol)
	respPayload, dispatchErr := f.dispatcher.Dispatch(r.Context(), interfaceName, uint32(methodID64), archive, decoded.Bytes())
	if dispatchErr != nil {
		f.writeError(w, protocol, dispatchErr)
		return
	}

	f.logger.DLogf("served %s from %s", interfaceName, clientIP)

	respBuf := f.pool.Acquire(len(respPayload))
	copy(respBuf.Bytes(), respPayload)
	encoded, err := f.chain.Encode(respBuf)
	if err != nil {
		f.writeError(w, protocol, err)
		return
	}
	defer encoded.Release()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(encoded.Bytes())
}

func (f *HTTPFramer) writeError(w http.ResponseWriter, protocol SerializationProtocol, err error) {
	re, ok := err.(*RemoteError)
	if !ok {
		re = NewRemoteError(ErrorKindApplication, err)
	}
	archive := ArchiveForProtocol(protocol)
	payload, merr := archive.Marshal(re)
	if merr != nil {
		http.Error(w, re.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusBadGateway)
	w.Write(payload)
}

// HTTPClientTransport issues RCF calls as plain HTTP requests, the client
// side of the same HTTP framing HTTPFramer serves (spec.md section 4.K).
type HTTPClientTransport struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClientTransport creates a transport posting to baseURL.
func NewHTTPClientTransport(client *http.Client, baseURL string) *HTTPClientTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClientTransport{client: client, baseURL: baseURL}
}

// Call issues one HTTP-framed RCF call and returns the raw (still filtered)
// response payload.
func (t *HTTPClientTransport) Call(ctx context.Context, interfaceName string, methodID uint32, protocol SerializationProtocol, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	req.Header.Set(headerInterface, interfaceName)
	req.Header.Set(headerMethodID, strconv.FormatUint(uint64(methodID), 10))
	req.Header.Set(headerProtocol, strconv.FormatUint(uint64(protocol), 10))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return nil, NewRemoteError(ErrorKindTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		var re RemoteError
		archive := ArchiveForProtocol(protocol)
		if uerr := archive.Unmarshal(data, &re); uerr != nil {
			return nil, NewRemoteError(ErrorKindTransport, fmt.Errorf("http status %d: %s", resp.StatusCode, data))
		}
		return nil, &re
	}
	return data, nil
}
