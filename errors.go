package structchunk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidExtent is returned for extents with a zero dimension, no
	// dimensions, or more elements than a chunk can index
	ErrInvalidExtent = errors.New("invalid extent")
	// ErrOutOfBounds is returned when a coordinate falls outside the extent it
	// is used with
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrMalformedSelection is returned when encoded selection bytes cannot be
	// turned back into a valid coordinate set
	ErrMalformedSelection = errors.New("malformed selection")
	// ErrLengthMismatch is returned when a value buffer does not hold exactly
	// one element per selected coordinate
	ErrLengthMismatch = errors.New("length mismatch")
	// ErrIndexOutOfRange is returned when a variable-length index entry
	// addresses bytes outside its blob
	ErrIndexOutOfRange = errors.New("index entry out of range")
	// ErrDegenerateRatio is returned when a storage ratio would divide by zero
	ErrDegenerateRatio = errors.New("degenerate storage ratio")
	// ErrStore marks failures coming from the underlying store. The store's
	// own error is wrapped alongside it.
	ErrStore = errors.New("store error")
)

func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}

// ChunkError records which density level, selection policy and operation
// failed while processing a chunk.
type ChunkError struct {
	Density int
	Policy  Policy
	Op      string
	Err     error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("density %d%% policy %s: %s: %v", e.Density, e.Policy, e.Op, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
