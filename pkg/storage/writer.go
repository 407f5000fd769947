package storage

import (
	"errors"
	"fmt"
)

// ImageWriter is the persistent staging area for one firmware image.
// At most one session may be open at a time: Open must not be called again
// until the previous session has been committed, discarded, or has errored.
type ImageWriter interface {
	// Open starts a new image session expected to hold size bytes.
	Open(size uint32) error

	// Append writes the next run of image bytes and returns how many were
	// written. On embedded targets this maps to a physical flash write and
	// may block the calling goroutine for the duration of the write.
	Append(p []byte) (int, error)

	// Commit finalizes the image and makes it the active one. The session
	// is terminated whether or not Commit succeeds.
	Commit() error

	// Discard drops all staged bytes and terminates the session.
	// Calling Discard with no open session is a no-op.
	Discard()
}

var (
	ErrNotOpen     = errors.New("storage: no open image session")
	ErrAlreadyOpen = errors.New("storage: image session already open")
	ErrZeroSize    = errors.New("storage: image size must be non-zero")
)

// CapacityError is returned by Open when the declared image size does not
// fit in the slot.
type CapacityError struct {
	Requested uint32
	Capacity  uint32
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("storage: image of %d bytes exceeds slot capacity of %d bytes", e.Requested, e.Capacity)
}
