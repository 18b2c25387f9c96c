package heap

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInitialized = errors.New("heap: already initialized")
	ErrNotInitialized     = errors.New("heap: not initialized")
	ErrBadRegion          = errors.New("heap: bad region")
	ErrOverlap            = errors.New("heap: region overlaps static allocation")
	ErrOutOfMemory        = errors.New("heap: out of memory")
	ErrInvalidSize        = errors.New("heap: invalid allocation size")
	ErrInvalidFree        = errors.New("heap: invalid free")
)

// AllocError is returned when the allocator cannot satisfy a request.
type AllocError struct {
	Size uint32
}

func (err *AllocError) Error() string {
	return fmt.Sprintf("heap: allocation of %d bytes failed", err.Size)
}

func (err *AllocError) Unwrap() error {
	return ErrOutOfMemory
}
