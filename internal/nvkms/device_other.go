//go:build !linux

package nvkms

import (
	"fmt"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// OpenDevice always fails: the NVKMS device node only exists on Linux.
func OpenDevice(path string) (Transport, error) {
	return nil, fmt.Errorf("%w: %s is only available on linux", display.ErrDeviceAbsent, path)
}
