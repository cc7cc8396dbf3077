package imagecache

import (
	"errors"
	"fmt"
)

var (
	// ErrOriginUnavailable is matched by every failure to fetch an image from the origin.
	ErrOriginUnavailable = errors.New("imagecache: origin unavailable")
	// ErrInvalidImageID is returned for ids that are not positive.
	ErrInvalidImageID = errors.New("imagecache: image id must be positive")
	// ErrClosed is returned by Resolve after Close.
	ErrClosed = errors.New("imagecache: cache closed")
)

// OriginError describes a failed origin fetch. It matches ErrOriginUnavailable
// with errors.Is and unwraps to the underlying cause.
type OriginError struct {
	ID  int64
	Err error
}

func (e *OriginError) Error() string {
	return fmt.Sprintf("imagecache: fetch image %d: %v", e.ID, e.Err)
}

func (e *OriginError) Unwrap() error { return e.Err }

func (e *OriginError) Is(target error) bool {
	return target == ErrOriginUnavailable
}
