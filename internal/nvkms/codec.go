package nvkms

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Op is an NVKMS operation number carried in the envelope command field.
type Op uint32

// Operations used by this layer.
const (
	OpAllocDevice                Op = 0
	OpFreeDevice                 Op = 1
	OpQueryDisp                  Op = 2
	OpQueryConnectorStaticData   Op = 3
	OpQueryDpyDynamicData        Op = 6
	OpSetDpyAttribute            Op = 21
	OpGetDpyAttribute            Op = 22
	OpGetDpyAttributeValidValues Op = 23
)

func (op Op) String() string {
	switch op {
	case OpAllocDevice:
		return "AllocDevice"
	case OpFreeDevice:
		return "FreeDevice"
	case OpQueryDisp:
		return "QueryDisp"
	case OpQueryConnectorStaticData:
		return "QueryConnectorStaticData"
	case OpQueryDpyDynamicData:
		return "QueryDpyDynamicData"
	case OpSetDpyAttribute:
		return "SetDpyAttribute"
	case OpGetDpyAttribute:
		return "GetDpyAttribute"
	case OpGetDpyAttributeValidValues:
		return "GetDpyAttributeValidValues"
	}
	return fmt.Sprintf("Op(%d)", uint32(op))
}

// Layout limits.
const (
	// VersionStringSize is the fixed size of the NUL-padded version field.
	VersionStringSize = 32

	// MaxDisps is the number of disp handle slots in the AllocDevice reply.
	MaxDisps = 8

	// MaxConnectors is the number of connector handle slots in the QueryDisp reply.
	MaxConnectors = 16

	// MonitorNameSize is the fixed size of the NUL-terminated monitor name.
	MonitorNameSize = 64
)

// layout is the request and reply sizes of one operation.
type layout struct {
	request int
	reply   int
}

var layouts = map[Op]layout{
	OpAllocDevice:                {request: 40, reply: 48},
	OpFreeDevice:                 {request: 4, reply: 0},
	OpQueryDisp:                  {request: 8, reply: 80},
	OpQueryConnectorStaticData:   {request: 12, reply: 24},
	OpQueryDpyDynamicData:        {request: 16, reply: 80},
	OpSetDpyAttribute:            {request: 24, reply: 0},
	OpGetDpyAttribute:            {request: 16, reply: 8},
	OpGetDpyAttributeValidValues: {request: 16, reply: 24},
}

// ParamsSize returns the size of the parameter block for op, or 0 if the
// operation is unknown.
func (op Op) ParamsSize() int {
	l, ok := layouts[op]
	if !ok {
		return 0
	}
	return l.request + l.reply
}

// requestSize returns the offset at which the reply record begins.
func (op Op) requestSize() int {
	return layouts[op].request
}

// Request is a record the session can send.
type Request interface {
	Op() Op
	put(b []byte) error
}

// Reply is a record the session can receive.
type Reply interface {
	parse(b []byte) error
}

// Encode allocates the parameter block for req and writes the request
// record into its head. The reply area is zeroed.
func Encode(req Request) ([]byte, error) {
	op := req.Op()
	size := op.ParamsSize()
	if size == 0 {
		return nil, fmt.Errorf("%w: unknown op %d", ErrEncode, uint32(op))
	}
	params := make([]byte, size)
	if err := req.put(params[:op.requestSize()]); err != nil {
		return nil, err
	}
	return params, nil
}

// Decode reads the reply record of op from a parameter block.
func Decode(op Op, params []byte, reply Reply) error {
	l, ok := layouts[op]
	if !ok {
		return fmt.Errorf("%w: unknown op %d", ErrDecode, uint32(op))
	}
	if len(params) < l.request+l.reply {
		return fmt.Errorf("%w: %s params %d bytes, want %d", ErrDecode, op, len(params), l.request+l.reply)
	}
	return reply.parse(params[l.request : l.request+l.reply])
}

// readBool reads a one-byte boolean, rejecting anything but 0 and 1.
func readBool(b byte, field string) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: %s = %d, want 0 or 1", ErrDecode, field, b)
}

func putBool(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// ─── AllocDevice ───────────────────────────────────────────────

// AllocDeviceRequest asks the driver for a device handle.
//
//	Byte 0-31:  version string (NUL padded)
//	Byte 32-35: device ID
//	Byte 36-39: reserved (zero)
type AllocDeviceRequest struct {
	Version  string
	DeviceID uint32
}

// Op implements Request.
func (AllocDeviceRequest) Op() Op { return OpAllocDevice }

func (r AllocDeviceRequest) put(b []byte) error {
	if len(r.Version) >= VersionStringSize {
		return fmt.Errorf("%w: version %q longer than %d bytes", ErrEncode, r.Version, VersionStringSize-1)
	}
	copy(b[0:VersionStringSize], r.Version)
	binary.LittleEndian.PutUint32(b[32:36], r.DeviceID)
	return nil
}

func (r *AllocDeviceRequest) parse(b []byte) error {
	name, ok := cString(b[0:VersionStringSize])
	if !ok {
		return fmt.Errorf("%w: version not terminated", ErrDecode)
	}
	r.Version = name
	r.DeviceID = binary.LittleEndian.Uint32(b[32:36])
	return nil
}

// AllocDeviceReply carries the device handle and its disp handles.
//
//	Byte 0-3:   status
//	Byte 4-7:   device handle
//	Byte 8-11:  sub-device mask
//	Byte 12-15: number of disps
//	Byte 16-47: disp handles [8]u32
type AllocDeviceReply struct {
	Status        AllocStatus
	DeviceHandle  uint32
	SubDeviceMask uint32
	DispHandles   []uint32
}

func (r *AllocDeviceReply) parse(b []byte) error {
	r.Status = AllocStatus(binary.LittleEndian.Uint32(b[0:4]))
	r.DeviceHandle = binary.LittleEndian.Uint32(b[4:8])
	r.SubDeviceMask = binary.LittleEndian.Uint32(b[8:12])

	n := binary.LittleEndian.Uint32(b[12:16])
	if n > MaxDisps {
		return fmt.Errorf("%w: %d disps exceeds %d slots", ErrDecode, n, MaxDisps)
	}
	r.DispHandles = make([]uint32, n)
	for i := range r.DispHandles {
		off := 16 + 4*i
		r.DispHandles[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return nil
}

func (r AllocDeviceReply) put(b []byte) error {
	if len(r.DispHandles) > MaxDisps {
		return fmt.Errorf("%w: %d disps", ErrEncode, len(r.DispHandles))
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(r.Status))
	binary.LittleEndian.PutUint32(b[4:8], r.DeviceHandle)
	binary.LittleEndian.PutUint32(b[8:12], r.SubDeviceMask)
	binary.LittleEndian.PutUint32(b[12:16], uint32(len(r.DispHandles))) //nolint:gosec // bounded by MaxDisps
	for i, h := range r.DispHandles {
		off := 16 + 4*i
		binary.LittleEndian.PutUint32(b[off:off+4], h)
	}
	return nil
}

// ─── FreeDevice ────────────────────────────────────────────────

// FreeDeviceRequest releases a device handle. It has no reply.
type FreeDeviceRequest struct {
	DeviceHandle uint32
}

// Op implements Request.
func (FreeDeviceRequest) Op() Op { return OpFreeDevice }

func (r FreeDeviceRequest) put(b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], r.DeviceHandle)
	return nil
}

func (r *FreeDeviceRequest) parse(b []byte) error {
	r.DeviceHandle = binary.LittleEndian.Uint32(b[0:4])
	return nil
}

// ─── QueryDisp ─────────────────────────────────────────────────

// QueryDispRequest asks for the connectors of one disp.
type QueryDispRequest struct {
	DeviceHandle uint32
	DispHandle   uint32
}

// Op implements Request.
func (QueryDispRequest) Op() Op { return OpQueryDisp }

func (r QueryDispRequest) put(b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], r.DeviceHandle)
	binary.LittleEndian.PutUint32(b[4:8], r.DispHandle)
	return nil
}

func (r *QueryDispRequest) parse(b []byte) error {
	r.DeviceHandle = binary.LittleEndian.Uint32(b[0:4])
	r.DispHandle = binary.LittleEndian.Uint32(b[4:8])
	return nil
}

// QueryDispReply lists the connectors of a disp and the dpy bitmasks.
//
//	Byte 0-3:   number of connectors
//	Byte 4-7:   valid dpys mask
//	Byte 8-11:  connected dpys mask
//	Byte 12-15: boot dpys mask
//	Byte 16-79: connector handles [16]u32
type QueryDispReply struct {
	ConnectorHandles []uint32
	ValidDpys        uint32
	ConnectedDpys    uint32
	BootDpys         uint32
}

func (r *QueryDispReply) parse(b []byte) error {
	n := binary.LittleEndian.Uint32(b[0:4])
	if n > MaxConnectors {
		return fmt.Errorf("%w: %d connectors exceeds %d slots", ErrDecode, n, MaxConnectors)
	}
	r.ValidDpys = binary.LittleEndian.Uint32(b[4:8])
	r.ConnectedDpys = binary.LittleEndian.Uint32(b[8:12])
	r.BootDpys = binary.LittleEndian.Uint32(b[12:16])
	if r.ConnectedDpys&^r.ValidDpys != 0 {
		return fmt.Errorf("%w: connected dpys %#x not a subset of valid %#x", ErrDecode, r.ConnectedDpys, r.ValidDpys)
	}
	r.ConnectorHandles = make([]uint32, n)
	for i := range r.ConnectorHandles {
		off := 16 + 4*i
		r.ConnectorHandles[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return nil
}

func (r QueryDispReply) put(b []byte) error {
	if len(r.ConnectorHandles) > MaxConnectors {
		return fmt.Errorf("%w: %d connectors", ErrEncode, len(r.ConnectorHandles))
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(r.ConnectorHandles))) //nolint:gosec // bounded by MaxConnectors
	binary.LittleEndian.PutUint32(b[4:8], r.ValidDpys)
	binary.LittleEndian.PutUint32(b[8:12], r.ConnectedDpys)
	binary.LittleEndian.PutUint32(b[12:16], r.BootDpys)
	for i, h := range r.ConnectorHandles {
		off := 16 + 4*i
		binary.LittleEndian.PutUint32(b[off:off+4], h)
	}
	return nil
}

// ─── QueryConnectorStaticData ──────────────────────────────────

// ConnectorStaticRequest asks for the fixed facts of one connector.
type ConnectorStaticRequest struct {
	DeviceHandle    uint32
	DispHandle      uint32
	ConnectorHandle uint32
}

// Op implements Request.
func (ConnectorStaticRequest) Op() Op { return OpQueryConnectorStaticData }

func (r ConnectorStaticRequest) put(b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], r.DeviceHandle)
	binary.LittleEndian.PutUint32(b[4:8], r.DispHandle)
	binary.LittleEndian.PutUint32(b[8:12], r.ConnectorHandle)
	return nil
}

func (r *ConnectorStaticRequest) parse(b []byte) error {
	r.DeviceHandle = binary.LittleEndian.Uint32(b[0:4])
	r.DispHandle = binary.LittleEndian.Uint32(b[4:8])
	r.ConnectorHandle = binary.LittleEndian.Uint32(b[8:12])
	return nil
}

// ConnectorType is the NVKMS connector type code.
type ConnectorType uint32

// Connector type codes.
const (
	ConnectorTypeDP           ConnectorType = 0
	ConnectorTypeVGA          ConnectorType = 1
	ConnectorTypeDVII         ConnectorType = 2
	ConnectorTypeDVID         ConnectorType = 3
	ConnectorTypeADC          ConnectorType = 4
	ConnectorTypeLVDS         ConnectorType = 5
	ConnectorTypeHDMI         ConnectorType = 6
	ConnectorTypeUSBC         ConnectorType = 7
	ConnectorTypeDSI          ConnectorType = 8
	ConnectorTypeDPSerializer ConnectorType = 9
	ConnectorTypeUnknown      ConnectorType = 10
)

// SignalFormat is the NVKMS connector signal format code.
type SignalFormat uint32

// Signal formats.
const (
	SignalFormatUnknown SignalFormat = 0
	SignalFormatVGA     SignalFormat = 1
	SignalFormatLVDS    SignalFormat = 2
	SignalFormatTMDS    SignalFormat = 3
	SignalFormatDP      SignalFormat = 4
	SignalFormatDSI     SignalFormat = 5
)

func (s SignalFormat) String() string {
	switch s {
	case SignalFormatVGA:
		return "VGA"
	case SignalFormatLVDS:
		return "LVDS"
	case SignalFormatTMDS:
		return "TMDS"
	case SignalFormatDP:
		return "DP"
	case SignalFormatDSI:
		return "DSI"
	}
	return "unknown"
}

// ConnectorStaticReply holds the fixed facts of a connector.
//
//	Byte 0-3:   dpy ID (single bit)
//	Byte 4-7:   connector type
//	Byte 8-11:  type index
//	Byte 12-15: signal format
//	Byte 16-19: physical index
//	Byte 20:    is DP (0/1)
//	Byte 21:    is LVDS (0/1)
//	Byte 22-23: padding
type ConnectorStaticReply struct {
	DpyID         uint32
	Type          ConnectorType
	TypeIndex     uint32
	SignalFormat  SignalFormat
	PhysicalIndex uint32
	IsDP          bool
	IsLVDS        bool
}

func (r *ConnectorStaticReply) parse(b []byte) error {
	r.DpyID = binary.LittleEndian.Uint32(b[0:4])
	if r.DpyID == 0 || r.DpyID&(r.DpyID-1) != 0 {
		return fmt.Errorf("%w: dpy id %#x is not a single bit", ErrDecode, r.DpyID)
	}
	r.Type = ConnectorType(binary.LittleEndian.Uint32(b[4:8]))
	if r.Type > ConnectorTypeUnknown {
		return fmt.Errorf("%w: connector type %d", ErrDecode, r.Type)
	}
	r.TypeIndex = binary.LittleEndian.Uint32(b[8:12])
	r.SignalFormat = SignalFormat(binary.LittleEndian.Uint32(b[12:16]))
	r.PhysicalIndex = binary.LittleEndian.Uint32(b[16:20])

	var err error
	if r.IsDP, err = readBool(b[20], "isDP"); err != nil {
		return err
	}
	if r.IsLVDS, err = readBool(b[21], "isLvds"); err != nil {
		return err
	}
	return nil
}

func (r ConnectorStaticReply) put(b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], r.DpyID)
	binary.LittleEndian.PutUint32(b[4:8], uint32(r.Type))
	binary.LittleEndian.PutUint32(b[8:12], r.TypeIndex)
	binary.LittleEndian.PutUint32(b[12:16], uint32(r.SignalFormat))
	binary.LittleEndian.PutUint32(b[16:20], r.PhysicalIndex)
	b[20] = putBool(r.IsDP)
	b[21] = putBool(r.IsLVDS)
	return nil
}

// ─── QueryDpyDynamicData ───────────────────────────────────────

// DpyDynamicRequest asks for the hotplug-dependent facts of a dpy.
//
//	Byte 0-3:   device handle
//	Byte 4-7:   disp handle
//	Byte 8-11:  dpy ID
//	Byte 12:    force connected
//	Byte 13:    force disconnected
//	Byte 14-15: padding
type DpyDynamicRequest struct {
	DeviceHandle      uint32
	DispHandle        uint32
	DpyID             uint32
	ForceConnected    bool
	ForceDisconnected bool
}

// Op implements Request.
func (DpyDynamicRequest) Op() Op { return OpQueryDpyDynamicData }

func (r DpyDynamicRequest) put(b []byte) error {
	if r.ForceConnected && r.ForceDisconnected {
		return fmt.Errorf("%w: force connected and disconnected together", ErrEncode)
	}
	binary.LittleEndian.PutUint32(b[0:4], r.DeviceHandle)
	binary.LittleEndian.PutUint32(b[4:8], r.DispHandle)
	binary.LittleEndian.PutUint32(b[8:12], r.DpyID)
	b[12] = putBool(r.ForceConnected)
	b[13] = putBool(r.ForceDisconnected)
	return nil
}

func (r *DpyDynamicRequest) parse(b []byte) error {
	r.DeviceHandle = binary.LittleEndian.Uint32(b[0:4])
	r.DispHandle = binary.LittleEndian.Uint32(b[4:8])
	r.DpyID = binary.LittleEndian.Uint32(b[8:12])
	r.ForceConnected = b[12] != 0
	r.ForceDisconnected = b[13] != 0
	return nil
}

// DpyDynamicReply holds connection state, the active mode and the monitor name.
//
//	Byte 0:     connected (0/1)
//	Byte 1:     mode valid (0/1)
//	Byte 2-3:   padding
//	Byte 4-5:   visible width
//	Byte 6-7:   visible height
//	Byte 8-11:  refresh rate in milli-hertz
//	Byte 12-15: reserved
//	Byte 16-79: monitor name (NUL terminated)
type DpyDynamicReply struct {
	Connected      bool
	ModeValid      bool
	Width          uint16
	Height         uint16
	RefreshMilliHz uint32
	MonitorName    string
}

func (r *DpyDynamicReply) parse(b []byte) error {
	var err error
	if r.Connected, err = readBool(b[0], "connected"); err != nil {
		return err
	}
	if r.ModeValid, err = readBool(b[1], "modeValid"); err != nil {
		return err
	}
	r.Width = binary.LittleEndian.Uint16(b[4:6])
	r.Height = binary.LittleEndian.Uint16(b[6:8])
	r.RefreshMilliHz = binary.LittleEndian.Uint32(b[8:12])
	if r.ModeValid && !r.Connected {
		return fmt.Errorf("%w: mode valid on a disconnected dpy", ErrDecode)
	}
	if r.ModeValid && (r.Width == 0 || r.Height == 0) {
		return fmt.Errorf("%w: valid mode with zero size %dx%d", ErrDecode, r.Width, r.Height)
	}

	name, ok := cString(b[16 : 16+MonitorNameSize])
	if !ok {
		return fmt.Errorf("%w: monitor name not terminated", ErrDecode)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: monitor name is not UTF-8", ErrDecode)
	}
	r.MonitorName = name
	return nil
}

func (r DpyDynamicReply) put(b []byte) error {
	if len(r.MonitorName) >= MonitorNameSize {
		return fmt.Errorf("%w: monitor name too long", ErrEncode)
	}
	b[0] = putBool(r.Connected)
	b[1] = putBool(r.ModeValid)
	binary.LittleEndian.PutUint16(b[4:6], r.Width)
	binary.LittleEndian.PutUint16(b[6:8], r.Height)
	binary.LittleEndian.PutUint32(b[8:12], r.RefreshMilliHz)
	copy(b[16:16+MonitorNameSize], r.MonitorName)
	return nil
}

// ─── Dpy attributes ────────────────────────────────────────────

// Attribute is an NVKMS dpy attribute identifier.
type Attribute uint32

// Dpy attributes used by this layer.
const (
	AttrRequestedDithering       Attribute = 4
	AttrCurrentDithering         Attribute = 7
	AttrDigitalVibrance          Attribute = 10
	AttrImageSharpening          Attribute = 11
	AttrImageSharpeningAvailable Attribute = 12
	AttrImageSharpeningDefault   Attribute = 13
	AttrRequestedColorSpace      Attribute = 14
	AttrCurrentColorSpace        Attribute = 15
	AttrRequestedColorRange      Attribute = 16
	AttrCurrentColorRange        Attribute = 17
)

// Requested dithering values. Current dithering reads back as a boolean.
const (
	DitheringAuto     int64 = 0
	DitheringEnabled  int64 = 1
	DitheringDisabled int64 = 2
)

// AttributeRequest addresses one attribute of one dpy; it is the request of
// both GetDpyAttribute and GetDpyAttributeValidValues.
//
//	Byte 0-3:   device handle
//	Byte 4-7:   disp handle
//	Byte 8-11:  dpy ID
//	Byte 12-15: attribute
type AttributeRequest struct {
	DeviceHandle uint32
	DispHandle   uint32
	DpyID        uint32
	Attribute    Attribute
	ValidValues  bool
}

// Op implements Request.
func (r AttributeRequest) Op() Op {
	if r.ValidValues {
		return OpGetDpyAttributeValidValues
	}
	return OpGetDpyAttribute
}

func (r AttributeRequest) put(b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], r.DeviceHandle)
	binary.LittleEndian.PutUint32(b[4:8], r.DispHandle)
	binary.LittleEndian.PutUint32(b[8:12], r.DpyID)
	binary.LittleEndian.PutUint32(b[12:16], uint32(r.Attribute))
	return nil
}

func (r *AttributeRequest) parse(b []byte) error {
	r.DeviceHandle = binary.LittleEndian.Uint32(b[0:4])
	r.DispHandle = binary.LittleEndian.Uint32(b[4:8])
	r.DpyID = binary.LittleEndian.Uint32(b[8:12])
	r.Attribute = Attribute(binary.LittleEndian.Uint32(b[12:16]))
	return nil
}

// AttributeValueReply is the GetDpyAttribute reply: one signed 64-bit value.
type AttributeValueReply struct {
	Value int64
}

func (r *AttributeValueReply) parse(b []byte) error {
	r.Value = int64(binary.LittleEndian.Uint64(b[0:8])) //nolint:gosec // two's complement on the wire
	return nil
}

func (r AttributeValueReply) put(b []byte) error {
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.Value)) //nolint:gosec // two's complement on the wire
	return nil
}

// SetAttributeRequest writes one attribute of one dpy. It has no reply.
//
//	Byte 0-15:  as AttributeRequest
//	Byte 16-23: value (signed)
type SetAttributeRequest struct {
	DeviceHandle uint32
	DispHandle   uint32
	DpyID        uint32
	Attribute    Attribute
	Value        int64
}

// Op implements Request.
func (SetAttributeRequest) Op() Op { return OpSetDpyAttribute }

func (r SetAttributeRequest) put(b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], r.DeviceHandle)
	binary.LittleEndian.PutUint32(b[4:8], r.DispHandle)
	binary.LittleEndian.PutUint32(b[8:12], r.DpyID)
	binary.LittleEndian.PutUint32(b[12:16], uint32(r.Attribute))
	binary.LittleEndian.PutUint64(b[16:24], uint64(r.Value)) //nolint:gosec // two's complement on the wire
	return nil
}

func (r *SetAttributeRequest) parse(b []byte) error {
	r.DeviceHandle = binary.LittleEndian.Uint32(b[0:4])
	r.DispHandle = binary.LittleEndian.Uint32(b[4:8])
	r.DpyID = binary.LittleEndian.Uint32(b[8:12])
	r.Attribute = Attribute(binary.LittleEndian.Uint32(b[12:16]))
	r.Value = int64(binary.LittleEndian.Uint64(b[16:24])) //nolint:gosec // two's complement on the wire
	return nil
}

// ValueType is the type tag of a valid-values reply.
type ValueType uint32

// Valid-values type tags.
const (
	ValueTypeInteger ValueType = 0
	ValueTypeBoolean ValueType = 1
	ValueTypeIntBits ValueType = 2
	ValueTypeRange   ValueType = 3
	ValueTypeBitmask ValueType = 4
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeInteger:
		return "integer"
	case ValueTypeBoolean:
		return "boolean"
	case ValueTypeIntBits:
		return "intbits"
	case ValueTypeRange:
		return "range"
	case ValueTypeBitmask:
		return "bitmask"
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// ValidValuesReply describes the legal domain of an attribute. The 16-byte
// union is decoded by Type: Range uses min/max, IntBits uses the bit set.
//
//	Byte 0:     readable (0/1)
//	Byte 1:     writable (0/1)
//	Byte 2-3:   padding
//	Byte 4-7:   type
//	Byte 8-23:  union { range: min i64, max i64 | intBits: bits u64 }
type ValidValuesReply struct {
	Readable bool
	Writable bool
	Type     ValueType
	Min      int64
	Max      int64
	Bits     uint64
}

func (r *ValidValuesReply) parse(b []byte) error {
	var err error
	if r.Readable, err = readBool(b[0], "readable"); err != nil {
		return err
	}
	if r.Writable, err = readBool(b[1], "writable"); err != nil {
		return err
	}
	r.Type = ValueType(binary.LittleEndian.Uint32(b[4:8]))

	switch r.Type {
	case ValueTypeRange:
		r.Min = int64(binary.LittleEndian.Uint64(b[8:16]))  //nolint:gosec // two's complement on the wire
		r.Max = int64(binary.LittleEndian.Uint64(b[16:24])) //nolint:gosec // two's complement on the wire
		if r.Min > r.Max {
			return fmt.Errorf("%w: range min %d > max %d", ErrDecode, r.Min, r.Max)
		}
	case ValueTypeIntBits, ValueTypeBitmask:
		r.Bits = binary.LittleEndian.Uint64(b[8:16])
	case ValueTypeInteger, ValueTypeBoolean:
	default:
		return fmt.Errorf("%w: unknown valid-values type %d", ErrDecode, uint32(r.Type))
	}
	return nil
}

func (r ValidValuesReply) put(b []byte) error {
	b[0] = putBool(r.Readable)
	b[1] = putBool(r.Writable)
	binary.LittleEndian.PutUint32(b[4:8], uint32(r.Type))
	switch r.Type {
	case ValueTypeRange:
		binary.LittleEndian.PutUint64(b[8:16], uint64(r.Min))  //nolint:gosec // two's complement on the wire
		binary.LittleEndian.PutUint64(b[16:24], uint64(r.Max)) //nolint:gosec // two's complement on the wire
	case ValueTypeIntBits, ValueTypeBitmask:
		binary.LittleEndian.PutUint64(b[8:16], r.Bits)
	}
	return nil
}

// cString returns the bytes of b before the first NUL. ok is false when b
// holds no NUL at all.
func cString(b []byte) (string, bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", false
	}
	return string(b[:i]), true
}
