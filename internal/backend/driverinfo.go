package backend

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultDriverInfoPath is where the kernel module reports its version.
const DefaultDriverInfoPath = "/proc/driver/nvidia/version"

// DriverInfo describes the loaded kernel driver. It is used for
// diagnostics and as the default protocol version string.
type DriverInfo struct {
	Version string `json:"version"`
	Open    bool   `json:"open_kernel_module"`
	Raw     string `json:"raw,omitempty"`
}

// versionPattern matches the version in lines such as
// "NVRM version: NVIDIA UNIX Open Kernel Module for x86_64  550.54.14  Release Build ...".
var versionPattern = regexp.MustCompile(`\b(\d+\.\d+(?:\.\d+)?)\b`)

// ReadDriverInfo parses the driver version file at path.
func ReadDriverInfo(path string) (DriverInfo, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator configuration
	if err != nil {
		return DriverInfo{}, fmt.Errorf("reading driver info: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "NVRM version:") {
			continue
		}
		info, err := ParseDriverInfo(line)
		if err != nil {
			return DriverInfo{}, fmt.Errorf("reading driver info from %s: %w", path, err)
		}
		return info, nil
	}
	if err := scanner.Err(); err != nil {
		return DriverInfo{}, fmt.Errorf("reading driver info: %w", err)
	}
	return DriverInfo{}, fmt.Errorf("reading driver info: no NVRM version line in %s", path)
}

// ParseDriverInfo parses one "NVRM version:" line.
func ParseDriverInfo(line string) (DriverInfo, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "NVRM version:"))
	m := versionPattern.FindStringSubmatch(rest)
	if m == nil {
		return DriverInfo{}, fmt.Errorf("no version in %q", line)
	}
	return DriverInfo{
		Version: m[1],
		Open:    strings.Contains(rest, "Open Kernel Module"),
		Raw:     rest,
	}, nil
}
