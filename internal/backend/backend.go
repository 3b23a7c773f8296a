package backend

import (
	"context"
	"errors"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// ErrClosed is returned by operations on a closed backend or handle.
var ErrClosed = errors.New("backend: closed")

// Driver is one way of reaching the hardware: the NVKMS session or the
// nvidia-settings tool. Drivers do not validate values; Real wraps each in
// an attribute.Registry.
type Driver interface {
	Name() string
	Open(ctx context.Context) error
	ListDisplays(ctx context.Context) ([]display.Display, error)
	GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error)
	SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error
	ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error)
	Close() error
}

// Backend is the capability interface every higher layer depends on.
type Backend interface {
	// Supported reports whether any path to the hardware works.
	Supported(ctx context.Context) bool

	ListDisplays(ctx context.Context) ([]display.Display, error)
	GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error)
	SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error
	ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error)
	Close() error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// shouldFallBack reports whether err means the privileged path is
// unreachable for good.
func shouldFallBack(err error) bool {
	return errors.Is(err, display.ErrPermissionDenied) || errors.Is(err, display.ErrDeviceAbsent)
}
