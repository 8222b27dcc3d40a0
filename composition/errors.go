package composition

import (
	"errors"
	"fmt"
)

var (
	ErrNotParsed       = errors.New("composition has no parsed score")
	ErrInvalidRange    = errors.New("measure index out of range")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrInvalidChordIdx = errors.New("chord index must be non-negative")
	ErrInvalidBpm      = errors.New("bpm must be a positive integer")
)

// TransferError wraps a failed protocol exchange during download. Device
// state after it is indeterminate; the caller must clear and retry.
type TransferError struct {
	Offset uint32
	Cause  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed at offset %v: %v", e.Offset, e.Cause)
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}
