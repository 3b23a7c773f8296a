package fallback

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// dpyLine matches one entry of "nvidia-settings -q dpys", e.g.
//
//	[0] host:0[dpy:0] (DP-0) (connected, enabled)
var dpyLine = regexp.MustCompile(`^\s*\[(\d+)\]\s+\S*\[dpy:(\d+)\]\s+\(([^)]+)\)(?:\s+\(([^)]*)\))?`)

// rangeLine matches "... are in the range -1024 - 1023 (inclusive)."
var rangeLine = regexp.MustCompile(`range\s+(-?\d+)\s*-\s*(-?\d+)`)

// listLine matches "Valid values for 'ColorSpace' are: 0, 1 and 2."
var listLine = regexp.MustCompile(`[Vv]alid values for '[^']+' are:\s*([-\d,\s]+(?:and\s+-?\d+)?)`)

// boolLine matches "'Dithering' is a boolean attribute".
var boolLine = regexp.MustCompile(`is a boolean attribute`)

// parsedDpy is one display entry from the dpys query.
type parsedDpy struct {
	Index     uint32
	Name      string
	Connected bool
	Enabled   bool
}

// parseDpys parses the output of "nvidia-settings -q dpys".
func parseDpys(out string) ([]parsedDpy, error) {
	var dpys []parsedDpy
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		m := dpyLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		idx, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("dpy index %q: %w", m[2], err)
		}
		d := parsedDpy{Index: uint32(idx), Name: m[3]}
		for _, flag := range strings.Split(m[4], ",") {
			switch strings.TrimSpace(flag) {
			case "connected":
				d.Connected = true
			case "enabled":
				d.Enabled = true
			}
		}
		dpys = append(dpys, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(dpys) == 0 && !strings.Contains(out, "Display Device") {
		return nil, fmt.Errorf("no display devices in output")
	}
	return dpys, nil
}

// parseValue parses terse query output ("512") into an integer.
func parseValue(out string) (int64, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", line)
		}
		return v, nil
	}
	return 0, fmt.Errorf("empty output")
}

// parseDomain parses the verbose query output of an attribute into its
// domain. ok is false when the output describes no domain at all.
func parseDomain(kind display.Kind, out string) (display.ValueRange, bool, error) {
	switch kind.Shape() {
	case display.ShapeRange:
		m := rangeLine.FindStringSubmatch(out)
		if m == nil {
			return display.ValueRange{}, false, nil
		}
		lo, errLo := strconv.ParseInt(m[1], 10, 64)
		hi, errHi := strconv.ParseInt(m[2], 10, 64)
		if errLo != nil || errHi != nil || lo > hi {
			return display.ValueRange{}, false, fmt.Errorf("bad range %q", m[0])
		}
		return display.NewRange(lo, hi, 0), true, nil

	case display.ShapeEnum:
		m := listLine.FindStringSubmatch(out)
		if m == nil {
			return display.ValueRange{}, false, nil
		}
		fields := strings.FieldsFunc(strings.ReplaceAll(m[1], "and", ","), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		legal := make([]int64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return display.ValueRange{}, false, fmt.Errorf("bad legal value %q", f)
			}
			legal = append(legal, v)
		}
		if len(legal) == 0 {
			return display.ValueRange{}, false, fmt.Errorf("empty legal set")
		}
		return display.NewEnum(legal[0], legal...), true, nil

	case display.ShapeBool:
		if !boolLine.MatchString(out) {
			return display.ValueRange{}, false, nil
		}
		return display.NewBool(false), true, nil
	}
	return display.ValueRange{}, false, nil
}

// connectorFromName splits a connector name like "DP-0" or "DVI-D-1".
func connectorFromName(name string) display.ConnectorStatic {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return display.ConnectorStatic{Type: display.ConnectorUnknown}
	}
	idx, err := strconv.ParseUint(name[i+1:], 10, 32)
	if err != nil {
		return display.ConnectorStatic{Type: display.ConnectorUnknown}
	}

	static := display.ConnectorStatic{TypeIndex: uint32(idx)}
	switch prefix := name[:i]; prefix {
	case "DP":
		static.Type = display.ConnectorDP
		static.IsDP = true
	case "HDMI":
		static.Type = display.ConnectorHDMI
	case "DVI-D":
		static.Type = display.ConnectorDVID
	case "DVI-I":
		static.Type = display.ConnectorDVII
	case "CRT", "VGA":
		static.Type = display.ConnectorVGA
	case "LVDS":
		static.Type = display.ConnectorLVDS
	case "USB-C":
		static.Type = display.ConnectorUSBC
	case "DSI":
		static.Type = display.ConnectorDSI
	default:
		static.Type = display.ConnectorUnknown
	}
	return static
}

// isUnavailable reports whether tool output says the attribute does not
// exist on the target.
func isUnavailable(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "not available") || strings.Contains(lower, "unknown attribute")
}

// hasError reports whether the tool printed an error despite exiting zero.
func hasError(out string) bool {
	return strings.Contains(out, "ERROR:")
}
