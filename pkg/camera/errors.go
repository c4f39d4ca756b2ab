package camera

import (
	"errors"
	"fmt"

	"colorcam/pkg/allocator"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrState matches every error caused by calling an operation in the
	// wrong state.
	ErrState              = errors.New("invalid state")
	ErrAlreadyInitialized = fmt.Errorf("%w: already initialized", ErrState)
	ErrNotInitialized     = fmt.Errorf("%w: not initialized", ErrState)
	ErrAlreadyStreaming   = fmt.Errorf("%w: already streaming", ErrState)

	ErrNegotiationFailed = errors.New("stream negotiation failed")
	ErrUnsupportedFormat = errors.New("unsupported format")

	ErrAllocation = allocator.ErrAllocation
	ErrDecode     = errors.New("mjpeg decode failed")
	ErrCapacity   = errors.New("output buffer too small")

	ErrInvalidMode        = errors.New("invalid control mode")
	ErrUnsupportedControl = errors.New("unsupported control")
	ErrProtocolAnomaly    = errors.New("unexpected value reported by device")
)

// DecodeError carries the decoder's status code and, when the decoder
// reports one, the underlying error.
type DecodeError struct {
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mjpeg decode failed: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("mjpeg decode failed: status %d", e.Status)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}
