package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrReleased is returned when reading a payload after it has been released.
var ErrReleased = errors.New("bundle payload released")

// Payload is a loaded bundle. The cache owns it; callers borrow it and must
// not modify the bytes returned by Bytes.
type Payload struct {
	Filename    string
	ContentType string
	Digest      string // hex sha256 of the body
	FetchedAt   time.Time

	data     []byte
	released atomic.Bool
}

// NewPayload wraps a downloaded body.
func NewPayload(filename string, data []byte) *Payload {
	sum := sha256.Sum256(data)
	return &Payload{
		Filename:    filename,
		ContentType: mimetype.Detect(data).String(),
		Digest:      hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now(),
		data:        data,
	}
}

// Bytes returns the payload body, or ErrReleased once the payload has been released.
// Slices handed out before the release stay intact.
func (p *Payload) Bytes() ([]byte, error) {
	if p.released.Load() {
		return nil, ErrReleased
	}
	return p.data, nil
}

// Size returns the body length in bytes.
func (p *Payload) Size() int64 {
	return int64(len(p.data))
}

// Release marks the payload invalid for future use. It is safe to call more
// than once and reports whether this call did the release.
// The body is not freed here; it is reclaimed by the garbage collector once
// no borrower holds the handle or a slice returned by Bytes.
func (p *Payload) Release() bool {
	return p.released.CompareAndSwap(false, true)
}

// Released reports whether Release has been called.
func (p *Payload) Released() bool {
	return p.released.Load()
}
