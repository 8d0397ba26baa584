package rcf

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a RemoteError, in the same iota/String()/FromString()
// style as LogLevel. It crosses the wire as part of the error path described
// in spec.md section 7.
type ErrorKind int

const (
	// ErrorKindUnknown is the zero value; its presence on the wire is itself
	// a protocol violation.
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindTransport covers dial/accept/read/write/connection-reset failures.
	ErrorKindTransport
	// ErrorKindFraming covers malformed or truncated frame headers.
	ErrorKindFraming
	// ErrorKindFilter covers filter chain failures (decompression, decryption).
	ErrorKindFilter
	// ErrorKindProtocol covers unknown interface/method ids and malformed requests.
	ErrorKindProtocol
	// ErrorKindVersioning covers interface/method version mismatches (spec.md
	// section 8 scenario S5).
	ErrorKindVersioning
	// ErrorKindApplication covers errors returned by a service method itself.
	ErrorKindApplication
	// ErrorKindResource covers exhaustion of a bounded resource (buffers,
	// connections, file-transfer slots).
	ErrorKindResource
)

var errorKindNames = [...]string{
	"unknown", "transport", "framing", "filter", "protocol", "versioning", "application", "resource",
}

var nameToErrorKind = func() map[string]ErrorKind {
	m := make(map[string]ErrorKind)
	for i, name := range errorKindNames {
		m[name] = ErrorKind(i)
	}
	return m
}()

func (k ErrorKind) String() string {
	if k < ErrorKindUnknown || int(k) >= len(errorKindNames) {
		return errorKindNames[ErrorKindUnknown]
	}
	return errorKindNames[k]
}

// FromString parses a string into an ErrorKind, returning an error if it
// does not name a known kind.
func (k *ErrorKind) FromString(s string) error {
	v, ok := nameToErrorKind[strings.ToLower(s)]
	if !ok {
		return fmt.Errorf("unknown error kind: %q", s)
	}
	*k = v
	return nil
}

// RemoteError is the error value that crosses the wire between a Session's
// dispatcher and a ClientStub (spec.md section 7). It carries enough
// structure for a caller to decide whether to retry.
type RemoteError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rcf: %s: %s", e.Kind, e.Message)
}

// NewRemoteError builds a RemoteError from a local error, classifying it and
// deciding retryability per spec.md section 7's propagation policy: transport
// and resource failures are retryable, everything else is not.
func NewRemoteError(kind ErrorKind, err error) *RemoteError {
	retryable := kind == ErrorKindTransport || kind == ErrorKindResource
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &RemoteError{Kind: kind, Message: msg, Retryable: retryable}
}

// VersioningError is a RemoteError whose Kind is always ErrorKindVersioning,
// additionally carrying the server's acceptable version range (spec.md
// section 8 scenario S5). ClientStub does not renegotiate or retry on it.
type VersioningError struct {
	RemoteError
	RequestedVersion uint32
	MinVersion       uint32
	MaxVersion       uint32
}

func NewVersioningError(requested, min, max uint32) *VersioningError {
	return &VersioningError{
		RemoteError: RemoteError{
			Kind:      ErrorKindVersioning,
			Message:   fmt.Sprintf("requested version %d not in [%d,%d]", requested, min, max),
			Retryable: true,
		},
		RequestedVersion: requested,
		MinVersion:       min,
		MaxVersion:       max,
	}
}

// IsRetryable reports whether err is a RemoteError/VersioningError marked
// retryable. Non-RemoteError values (local transport errors wrapped directly)
// are treated as non-retryable, matching spec.md's "unknown errors are fatal
// to the call" default.
func IsRetryable(err error) bool {
	switch e := err.(type) {
	case *VersioningError:
		return e.Retryable
	case *RemoteError:
		return e.Retryable
	default:
		return false
	}
}
