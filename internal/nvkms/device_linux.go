//go:build linux

package nvkms

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// deviceFile is a Transport backed by the device node.
type deviceFile struct {
	fd int
}

// OpenDevice opens the NVKMS device node for reading and writing.
func OpenDevice(path string) (Transport, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classifyErrno(err)
	}
	return &deviceFile{fd: fd}, nil
}

// envelope mirrors the ioctl argument in native layout.
type envelope struct {
	cmd     uint32
	size    uint32
	address uint64
}

// Ioctl implements Transport.
func (d *deviceFile) Ioctl(op Op, params []byte) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: empty parameter block for %s", ErrEncode, op)
	}

	env := envelope{
		cmd:     uint32(op),
		size:    uint32(len(params)), //nolint:gosec // layouts are a few dozen bytes
		address: uint64(uintptr(unsafe.Pointer(&params[0]))),
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(IoctlRequest), uintptr(unsafe.Pointer(&env)))
	runtime.KeepAlive(params)
	runtime.KeepAlive(&env)

	if errno != 0 {
		return fmt.Errorf("%s: %w", op, classifyErrno(errno))
	}
	return nil
}

// Close implements Transport.
func (d *deviceFile) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// classifyErrno maps an errno onto the display taxonomy, keeping the errno
// in the chain.
func classifyErrno(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %w", display.ErrTransientIO, err)
	}

	var class error
	switch errno {
	case unix.EACCES, unix.EPERM:
		class = display.ErrPermissionDenied
	case unix.ENOENT, unix.ENODEV, unix.ENXIO:
		class = display.ErrDeviceAbsent
	case unix.EIO, unix.EAGAIN, unix.EINTR, unix.EBUSY, unix.ETIMEDOUT:
		class = display.ErrTransientIO
	case unix.EOPNOTSUPP:
		class = display.ErrUnsupported
	default:
		// EINVAL, ENOTTY, EFAULT and anything unexpected: the driver did
		// not understand the request.
		class = display.ErrProtocol
	}
	return fmt.Errorf("%w: %w", class, errno)
}
