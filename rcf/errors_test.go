package rcf

import (
	"errors"
	"testing"
)

func TestErrorKindStringAndFromString(t *testing.T) {
	var k ErrorKind
	if err := k.FromString("Transport"); err != nil {
		t.Fatalf("FromString: %s", err)
	}
	if k != ErrorKindTransport {
		t.Fatalf("FromString(Transport) = %v, want ErrorKindTransport", k)
	}
	if k.String() != "transport" {
		t.Fatalf("String() = %q, want transport", k.String())
	}
}

func TestErrorKindFromStringUnknown(t *testing.T) {
	var k ErrorKind
	if err := k.FromString("bogus"); err == nil {
		t.Fatalf("expected error for unknown kind name")
	}
}

func TestNewRemoteErrorRetryability(t *testing.T) {
	transportErr := NewRemoteError(ErrorKindTransport, errors.New("reset"))
	if !transportErr.Retryable {
		t.Fatalf("transport errors should be retryable")
	}
	appErr := NewRemoteError(ErrorKindApplication, errors.New("bad input"))
	if appErr.Retryable {
		t.Fatalf("application errors should not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain errors should never be retryable")
	}
	if !IsRetryable(NewRemoteError(ErrorKindResource, errors.New("pool exhausted"))) {
		t.Fatalf("resource errors should be retryable")
	}
	ve := NewVersioningError(3, 1, 2)
	if !IsRetryable(ve) {
		t.Fatalf("versioning errors should be retryable")
	}
}

func TestVersioningErrorMessage(t *testing.T) {
	ve := NewVersioningError(3, 1, 2)
	if ve.Kind != ErrorKindVersioning {
		t.Fatalf("Kind = %v, want ErrorKindVersioning", ve.Kind)
	}
	if ve.Error() == "" {
		t.Fatalf("Error() should not be empty")
	}
}
