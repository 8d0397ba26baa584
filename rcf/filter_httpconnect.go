package rcf

import (
	"net/http"
	"net/url"
)

// HTTPConnectFilter marks a transport as dialed through an HTTP CONNECT proxy
// (spec.md section 4.C-vi). It performs no payload
// transformation of its own — the CONNECT handshake happens once at dial
// time — so it is installed in a Chain purely so its FilterID is recorded in
// the Header for symmetry with every other named filter. Grounded on
// share/client.go's httpProxyURL / websocket.Dialer.Proxy CONNECT dialing.
type HTTPConnectFilter struct {
	ProxyURL *url.URL
}

func (f *HTTPConnectFilter) ID() FilterID { return FilterIDHTTPConnect }

func (f *HTTPConnectFilter) Encode(buf *ByteBuffer) (*ByteBuffer, error) { return buf, nil }

func (f *HTTPConnectFilter) Decode(buf *ByteBuffer) (*ByteBuffer, error) { return buf, nil }

// ProxyFunc returns an http.Transport/websocket.Dialer-compatible Proxy
// function that always dials through f.ProxyURL, matching share/client.go's
// d.Proxy = func(*http.Request) (*url.URL, error) { return c.httpProxyURL, nil }.
func (f *HTTPConnectFilter) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		return f.ProxyURL, nil
	}
}
