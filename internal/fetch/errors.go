package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch conditions.
var (
	ErrTransport = errors.New("transport error")
	ErrDecode    = errors.New("decode error")
)

// TransportError reports a fetch that failed in transit or returned a non-success status.
type TransportError struct {
	URL        string
	StatusCode int    // 0 when no response was received
	Status     string // e.g. "404 Not Found"
	Err        error  // underlying transport failure, if any
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch '%s': %v: %v", e.URL, ErrTransport, e.Err)
	}
	return fmt.Sprintf("fetch '%s': %v: unexpected status %s", e.URL, ErrTransport, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// DecodeError reports a response body that could not be deserialized.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode '%s': %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// IsNotFound reports whether err is a transport error carrying a 404 status.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == 404
}
