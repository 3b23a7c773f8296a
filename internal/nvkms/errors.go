package nvkms

import (
	"errors"
	"fmt"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Errors specific to the NVKMS layer. Each also matches a class from the
// display taxonomy.
var (
	// ErrDecode is returned when a reply is truncated or holds values the
	// layout does not allow.
	ErrDecode = fmt.Errorf("nvkms: malformed reply: %w", display.ErrProtocol)

	// ErrEncode is returned when a request cannot be represented in the
	// fixed layout (e.g., an over-long version string).
	ErrEncode = fmt.Errorf("nvkms: request does not fit layout: %w", display.ErrProtocol)

	// ErrNotOpen is returned for any operation attempted while the session
	// is Closed or Failed. No I/O is performed.
	ErrNotOpen = fmt.Errorf("nvkms: session not open: %w", display.ErrDeviceUnavailable)

	// ErrUnknownDisp is returned when a disp handle was not allocated by the session.
	ErrUnknownDisp = errors.New("nvkms: unknown disp handle")
)

// AllocStatus is the status code carried in the AllocDevice reply.
type AllocStatus uint32

// AllocDevice status codes.
const (
	AllocStatusSuccess                AllocStatus = 0
	AllocStatusVersionMismatch        AllocStatus = 1
	AllocStatusBadRequest             AllocStatus = 2
	AllocStatusFatalError             AllocStatus = 3
	AllocStatusNoHardwareAvailable    AllocStatus = 4
	AllocStatusCoreChannelAllocFailed AllocStatus = 5
)

func (s AllocStatus) String() string {
	switch s {
	case AllocStatusSuccess:
		return "success"
	case AllocStatusVersionMismatch:
		return "version mismatch"
	case AllocStatusBadRequest:
		return "bad request"
	case AllocStatusFatalError:
		return "fatal error"
	case AllocStatusNoHardwareAvailable:
		return "no hardware available"
	case AllocStatusCoreChannelAllocFailed:
		return "core channel allocation failed"
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// StatusError reports that the device answered but refused the request.
type StatusError struct {
	Op     Op
	Status AllocStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nvkms: %s refused: %s", e.Op, e.Status)
}

// Unwrap maps the refusal onto the display taxonomy.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case AllocStatusVersionMismatch, AllocStatusBadRequest:
		return display.ErrProtocol
	case AllocStatusNoHardwareAvailable:
		return display.ErrDeviceAbsent
	case AllocStatusCoreChannelAllocFailed:
		return display.ErrTransientIO
	default:
		return display.ErrDeviceUnavailable
	}
}
