package display

import (
	"errors"
	"fmt"
)

// classError is a sentinel that also matches a broader parent class.
type classError struct {
	msg    string
	parent error
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.parent }

// Error taxonomy for the attribute-control layer.
var (
	// ErrDeviceUnavailable is returned when the privileged device path cannot
	// be used. It triggers the external-tool fallback and is not user-fatal.
	ErrDeviceUnavailable = errors.New("display: device unavailable")

	// ErrPermissionDenied is returned when the device node exists but the
	// process may not open it.
	ErrPermissionDenied error = &classError{msg: "display: permission denied", parent: ErrDeviceUnavailable}

	// ErrDeviceAbsent is returned when no supported device is present.
	// It is never retried.
	ErrDeviceAbsent error = &classError{msg: "display: device absent", parent: ErrDeviceUnavailable}

	// ErrProtocol is returned on a codec or driver version mismatch.
	// It is fatal for the session and never retried.
	ErrProtocol = errors.New("display: protocol error")

	// ErrInvalidAttributeValue is returned when a value falls outside the
	// legal domain of an attribute. See InvalidValueError.
	ErrInvalidAttributeValue = errors.New("display: invalid attribute value")

	// ErrExternalTool is returned when the external configuration tool fails.
	// No further path exists after it.
	ErrExternalTool = errors.New("display: external tool error")

	// ErrTransientIO is returned for I/O failures that may succeed on retry,
	// including caller timeouts.
	ErrTransientIO = errors.New("display: transient I/O error")

	// ErrUnsupported is returned when an attribute is not available on a display.
	ErrUnsupported = errors.New("display: attribute unsupported")

	// ErrDisplayNotFound is returned when an ID does not name a known display.
	ErrDisplayNotFound = errors.New("display: not found")

	// ErrInvalidID is returned when a display ID string cannot be parsed.
	ErrInvalidID = errors.New("display: invalid display id")

	// ErrInvalidKind is returned when an attribute name is not recognised.
	ErrInvalidKind = errors.New("display: invalid attribute kind")
)

// InvalidValueError reports a rejected value together with the legal domain.
type InvalidValueError struct {
	Display ID
	Kind    Kind
	Value   int64
	Range   ValueRange
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: %s=%d on %s, legal %s",
		ErrInvalidAttributeValue, e.Kind, e.Value, e.Display, e.Range)
}

// Is lets errors.Is(err, ErrInvalidAttributeValue) match.
func (e *InvalidValueError) Is(target error) bool {
	return target == ErrInvalidAttributeValue
}

// Remediation returns a short user-facing hint for an error in the taxonomy.
// It returns an empty string for errors outside the taxonomy.
func Remediation(err error) string {
	var invalid *InvalidValueError
	switch {
	case errors.As(err, &invalid):
		return fmt.Sprintf("choose a value in %s", invalid.Range)
	case errors.Is(err, ErrPermissionDenied):
		return "add your user to the group owning /dev/nvidia-modeset or run with elevated privileges"
	case errors.Is(err, ErrDeviceAbsent):
		return "no NVIDIA display device is present; check that the nvidia-modeset module is loaded"
	case errors.Is(err, ErrDeviceUnavailable):
		return "the display device could not be opened; retry or check the driver"
	case errors.Is(err, ErrProtocol):
		return "the driver and this tool disagree on the protocol; upgrade one to match the other"
	case errors.Is(err, ErrExternalTool):
		return "ensure nvidia-settings is installed and can reach the display"
	case errors.Is(err, ErrUnsupported):
		return "this attribute is not available on the selected display"
	case errors.Is(err, ErrTransientIO):
		return "the device was busy; try again"
	case errors.Is(err, ErrDisplayNotFound):
		return "run 'nvdisplay list' to see connected displays"
	}
	return ""
}

// ErrorCode returns a stable machine-readable name for an error in the taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAttributeValue):
		return "invalid_attribute_value"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrDeviceAbsent):
		return "device_absent"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrProtocol):
		return "protocol_error"
	case errors.Is(err, ErrExternalTool):
		return "external_tool_error"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrTransientIO):
		return "transient_io_error"
	case errors.Is(err, ErrDisplayNotFound):
		return "display_not_found"
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidKind):
		return "bad_request"
	}
	return "internal_error"
}
