// Package nvkms talks to the NVIDIA kernel mode-setting device node.
//
// It has two layers:
//
//   - the codec (codec.go): fixed-layout request/reply records for the eight
//     control-plane operations this layer needs, packed little-endian into a
//     single parameter block that the driver reads the request from and
//     writes the reply into
//   - the session (session.go): the exclusive handle to /dev/nvidia-modeset
//     with a Closed/Open/Failed state machine and typed operations
//
// # Wire Format
//
// Every call is one ioctl with request number _IOWR('m', 0, 16) and a
// 16-byte envelope:
//
//	Byte 0-3:   command (operation number)
//	Byte 4-7:   size of the parameter block
//	Byte 8-15:  address of the parameter block
//
// The parameter block for an operation is its request record immediately
// followed by its reply record. Both have a fixed size per operation, so the
// codec never sizes an allocation from a field the device wrote.
//
// # Errors
//
// Replies that are truncated or carry impossible values produce ErrDecode,
// which matches display.ErrProtocol. A device that answers but refuses the
// request produces a *StatusError. Keeping the two apart lets callers tell
// "the device said no" from "we misread the device".
//
// # Thread Safety
//
// A Session serialises its own operations with a mutex, but it is designed
// to be owned by a single goroutine (see internal/backend.Worker).
package nvkms
