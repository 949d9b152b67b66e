package bundle

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

var errEmptyBody = errors.New("empty body")

// Decoder turns a fetched response body into a payload handle.
type Decoder interface {
	Decode(filename string, body []byte) (*Payload, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(filename string, body []byte) (*Payload, error)

// Decode calls f(filename, body).
func (f DecoderFunc) Decode(filename string, body []byte) (*Payload, error) {
	return f(filename, body)
}

// RawDecoder keeps the body as-is. When Accept is set, the sniffed content
// type must match one of its entries.
type RawDecoder struct {
	Accept []string
}

// Decode implements Decoder.
func (d RawDecoder) Decode(filename string, body []byte) (*Payload, error) {
	if len(body) == 0 {
		return nil, errEmptyBody
	}
	if len(d.Accept) > 0 {
		detected := mimetype.Detect(body)
		if !acceptsAny(detected, d.Accept) {
			return nil, fmt.Errorf("unexpected content type %s", detected.String())
		}
	}
	return NewPayload(filename, body), nil
}

func acceptsAny(m *mimetype.MIME, accept []string) bool {
	for _, a := range accept {
		if m.Is(a) {
			return true
		}
	}
	return false
}
