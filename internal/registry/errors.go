package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry conditions.
var (
	ErrNotFound  = errors.New("bundle not found")
	ErrMalformed = errors.New("malformed metadata")
)

// NotFoundError is returned by Lookup for an identifier never observed from any source.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lookup '%s': %v", e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
