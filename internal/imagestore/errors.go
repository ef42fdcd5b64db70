package imagestore

import (
	"errors"
	"fmt"
)

// ErrUndecodable marks a located file that is not an image in any supported format.
var ErrUndecodable = errors.New("not a decodable image")

// MissError is returned when no physical file could be located for an image reference.
type MissError struct {
	Ref     string
	Sources []string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("no image file found for %q (sources: %v)", e.Ref, e.Sources)
}

// StoreError wraps a failure to read an image or write one of its variants.
type StoreError struct {
	ContentHash string
	Message     string
	Cause       error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("image store error for %s: %s: %v", e.ContentHash, e.Message, e.Cause)
	}
	return fmt.Sprintf("image store error for %s: %s", e.ContentHash, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
