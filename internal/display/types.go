package display

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies one physical output: the device index plus the connector
// index on that device. It is stable for the lifetime of a session and
// becomes invalid when the device is removed.
type ID struct {
	Device    uint32 `json:"device"`
	Connector uint32 `json:"connector"`
}

// String renders the ID as "device:connector" (e.g., "0:3").
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Device, id.Connector)
}

// ParseID parses "device:connector" or a bare connector index (device 0).
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, fmt.Errorf("%w: empty", ErrInvalidID)
	}

	devPart, connPart, found := strings.Cut(s, ":")
	if !found {
		devPart, connPart = "0", s
	}

	dev, err := strconv.ParseUint(devPart, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	conn, err := strconv.ParseUint(connPart, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}

	return ID{Device: uint32(dev), Connector: uint32(conn)}, nil
}

// ConnectorType is the physical connector family.
type ConnectorType string

// Connector types reported by the driver.
const (
	ConnectorDP      ConnectorType = "DP"
	ConnectorVGA     ConnectorType = "CRT"
	ConnectorDVII    ConnectorType = "DVI-I"
	ConnectorDVID    ConnectorType = "DVI-D"
	ConnectorLVDS    ConnectorType = "LVDS"
	ConnectorHDMI    ConnectorType = "HDMI"
	ConnectorUSBC    ConnectorType = "USB-C"
	ConnectorDSI     ConnectorType = "DSI"
	ConnectorUnknown ConnectorType = "Unknown"
)

// ConnectorStatic holds facts that do not change while a connector exists.
// They are fetched once per session.
type ConnectorStatic struct {
	Type          ConnectorType `json:"type"`
	TypeIndex     uint32        `json:"type_index"`
	PhysicalIndex uint32        `json:"physical_index"`
	SignalFormat  string        `json:"signal_format,omitempty"`
	IsDP          bool          `json:"is_dp"`
}

// Name returns the driver-style connector name, e.g. "DP-0" or "HDMI-1".
func (c ConnectorStatic) Name() string {
	return fmt.Sprintf("%s-%d", c.Type, c.TypeIndex)
}

// Mode is an active display mode.
type Mode struct {
	Width          uint32 `json:"width"`
	Height         uint32 `json:"height"`
	RefreshMilliHz uint32 `json:"refresh_mhz"`
}

// String renders the mode as "WxH@R.RRHz".
func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%.2fHz", m.Width, m.Height, float64(m.RefreshMilliHz)/1000) //nolint:mnd // milli-hertz to hertz
}

// ConnectorDynamic holds facts that change with hotplug.
type ConnectorDynamic struct {
	Connected  bool   `json:"connected"`
	ActiveMode *Mode  `json:"active_mode,omitempty"`
	Monitor    string `json:"monitor,omitempty"`
}

// Display is one output as seen by a backend.
type Display struct {
	ID      ID               `json:"id"`
	Name    string           `json:"name"`
	Static  ConnectorStatic  `json:"static"`
	Dynamic ConnectorDynamic `json:"dynamic"`
}
