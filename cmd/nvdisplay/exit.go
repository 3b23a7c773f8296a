package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Exit codes. Each error kind has its own so scripts can react without
// parsing messages.
const (
	exitOK              = 0
	exitFailure         = 1
	exitUsage           = 2
	exitConfig          = 3
	exitDeviceAbsent    = 10
	exitPermission      = 11
	exitDeviceUnavail   = 12
	exitProtocol        = 13
	exitInvalidValue    = 14
	exitExternalTool    = 15
	exitTransient       = 16
	exitUnsupported     = 17
	exitDisplayNotFound = 18
	exitInterrupted     = 130
)

// exitCode maps an error to its exit code. The most specific kind wins:
// PermissionDenied and DeviceAbsent also match DeviceUnavailable.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage), errors.Is(err, display.ErrInvalidID), errors.Is(err, display.ErrInvalidKind):
		return exitUsage
	case errors.Is(err, display.ErrPermissionDenied):
		return exitPermission
	case errors.Is(err, display.ErrDeviceAbsent):
		return exitDeviceAbsent
	case errors.Is(err, display.ErrDeviceUnavailable):
		return exitDeviceUnavail
	case errors.Is(err, display.ErrProtocol):
		return exitProtocol
	case errors.Is(err, display.ErrInvalidAttributeValue):
		return exitInvalidValue
	case errors.Is(err, display.ErrExternalTool):
		return exitExternalTool
	case errors.Is(err, display.ErrTransientIO):
		return exitTransient
	case errors.Is(err, display.ErrUnsupported):
		return exitUnsupported
	case errors.Is(err, display.ErrDisplayNotFound):
		return exitDisplayNotFound
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	}
	return exitFailure
}

// report prints err with its kind and remediation, and returns the exit
// code.
func report(w io.Writer, err error) int {
	code := exitCode(err)
	if code == exitInterrupted {
		fmt.Fprintln(w, "interrupted")
		return code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if code != exitFailure && code != exitUsage {
		fmt.Fprintf(w, "  kind: %s\n", display.ErrorCode(err))
	}
	if hint := display.Remediation(err); hint != "" {
		fmt.Fprintf(w, "  hint: %s\n", hint)
	}
	return code
}
