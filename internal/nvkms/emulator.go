package nvkms

import (
	"fmt"
	"sync"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Handles and display masks used by the Emulator.
const (
	emuDevice   = 0x1001
	emuDisp     = 0x2001
	emuConnDP   = 0x3001
	emuConnHDMI = 0x3002
	emuDpyDP    = 0x1
	emuDpyHDMI  = 0x2
)

// Emulator is an in-memory Transport that behaves like the driver at the
// byte level: it decodes request records out of the parameter block and
// writes reply records back. It models one GPU with a connected DP
// monitor and an empty HDMI port.
//
// It backs the hardware-free mode (device.emulate) and tests above this
// package.
type Emulator struct {
	mu sync.Mutex

	version  string
	status   AllocStatus
	disps    []uint32
	conns    map[uint32][]uint32
	static   map[uint32]ConnectorStaticReply
	dynamic  map[uint32]DpyDynamicReply
	attrs    map[Attribute]int64
	valid    map[Attribute]ValidValuesReply
	failures []error
	corrupt  func(op Op, reply []byte)

	calls  []Op
	closed bool
}

// NewEmulator creates an emulator that accepts the given version string.
func NewEmulator(version string) *Emulator {
	return &Emulator{
		version: version,
		status:  AllocStatusSuccess,
		disps:   []uint32{emuDisp},
		conns:   map[uint32][]uint32{emuDisp: {emuConnDP, emuConnHDMI}},
		static: map[uint32]ConnectorStaticReply{
			emuConnDP:   {DpyID: emuDpyDP, Type: ConnectorTypeDP, TypeIndex: 0, SignalFormat: SignalFormatDP, IsDP: true},
			emuConnHDMI: {DpyID: emuDpyHDMI, Type: ConnectorTypeHDMI, TypeIndex: 0, SignalFormat: SignalFormatTMDS, PhysicalIndex: 1},
		},
		dynamic: map[uint32]DpyDynamicReply{
			emuDpyDP:   {Connected: true, ModeValid: true, Width: 2560, Height: 1440, RefreshMilliHz: 143998, MonitorName: "DELL S2721DGF"},
			emuDpyHDMI: {},
		},
		attrs: map[Attribute]int64{
			AttrDigitalVibrance:          0,
			AttrImageSharpening:          0,
			AttrImageSharpeningAvailable: 1,
			AttrImageSharpeningDefault:   0,
			AttrRequestedColorRange:      display.ColorRangeFull,
			AttrCurrentColorRange:        display.ColorRangeFull,
			AttrRequestedColorSpace:      display.ColorSpaceRGB,
			AttrCurrentColorSpace:        display.ColorSpaceRGB,
			AttrCurrentDithering:         1,
		},
		valid: map[Attribute]ValidValuesReply{
			AttrDigitalVibrance:     {Readable: true, Writable: true, Type: ValueTypeRange, Min: -1024, Max: 1023},
			AttrImageSharpening:     {Readable: true, Writable: true, Type: ValueTypeRange, Min: 0, Max: 255},
			AttrRequestedColorRange: {Readable: true, Writable: true, Type: ValueTypeIntBits, Bits: 0b11},
			AttrRequestedColorSpace: {Readable: true, Writable: true, Type: ValueTypeIntBits, Bits: 0b101},
			AttrCurrentDithering:    {Readable: true, Writable: true, Type: ValueTypeBoolean},
		},
	}
}

// Open returns the emulator as a Transport. It matches OpenFunc.
func (e *Emulator) Open(string) (Transport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = false
	return e, nil
}

// Fail queues errors returned by the next ioctls, in order. A nil entry
// lets that call through.
func (e *Emulator) Fail(errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, errs...)
}

// SetConnected plugs or unplugs a connector by display index (0 is the
// DP port, 1 the HDMI port).
func (e *Emulator) SetConnected(index int, connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dpy := uint32(emuDpyDP)
	if index == 1 {
		dpy = emuDpyHDMI
	}
	dyn := e.dynamic[dpy]
	dyn.Connected = connected
	e.dynamic[dpy] = dyn
}

// SetAttribute sets the driver-side value of attr.
func (e *Emulator) SetAttribute(attr Attribute, value int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[attr] = value
}

// Attribute returns the driver-side value of attr.
func (e *Emulator) Attribute(attr Attribute) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrs[attr]
}

// CallCount returns the number of ioctls received.
func (e *Emulator) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// OpCount returns how many times op was received.
func (e *Emulator) OpCount(op Op) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == op {
			n++
		}
	}
	return n
}

// LastCall returns the last op received.
func (e *Emulator) LastCall() Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return Op(0xffff)
	}
	return e.calls[len(e.calls)-1]
}

// Closed reports whether the transport has been closed.
func (e *Emulator) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Ioctl implements Transport.
func (e *Emulator) Ioctl(op Op, params []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, op)
	if len(e.failures) > 0 {
		err := e.failures[0]
		e.failures = e.failures[1:]
		if err != nil {
			return err
		}
	}
	if len(params) != op.ParamsSize() {
		return fmt.Errorf("%w: bad params size", display.ErrProtocol)
	}

	req := params[:op.requestSize()]
	rep := params[op.requestSize():]

	var err error
	switch op {
	case OpAllocDevice:
		var r AllocDeviceRequest
		if err = r.parse(req); err != nil {
			return err
		}
		out := AllocDeviceReply{Status: e.status, DeviceHandle: emuDevice, SubDeviceMask: 1, DispHandles: e.disps}
		if r.Version != e.version {
			out = AllocDeviceReply{Status: AllocStatusVersionMismatch}
		}
		err = out.put(rep)

	case OpFreeDevice:

	case OpQueryDisp:
		var r QueryDispRequest
		_ = r.parse(req)
		out := QueryDispReply{ConnectorHandles: e.conns[r.DispHandle], ValidDpys: emuDpyDP | emuDpyHDMI}
		for dpy, dyn := range e.dynamic {
			if dyn.Connected {
				out.ConnectedDpys |= dpy
			}
		}
		err = out.put(rep)

	case OpQueryConnectorStaticData:
		var r ConnectorStaticRequest
		_ = r.parse(req)
		err = e.static[r.ConnectorHandle].put(rep)

	case OpQueryDpyDynamicData:
		var r DpyDynamicRequest
		_ = r.parse(req)
		err = e.dynamic[r.DpyID].put(rep)

	case OpGetDpyAttribute:
		var r AttributeRequest
		_ = r.parse(req)
		err = AttributeValueReply{Value: e.attrs[r.Attribute]}.put(rep)

	case OpSetDpyAttribute:
		var r SetAttributeRequest
		_ = r.parse(req)
		switch {
		case r.Attribute == AttrRequestedDithering && r.Value == DitheringEnabled:
			e.attrs[AttrCurrentDithering] = 1
		case r.Attribute == AttrRequestedDithering:
			e.attrs[AttrCurrentDithering] = 0
		default:
			e.attrs[r.Attribute] = r.Value
		}

	case OpGetDpyAttributeValidValues:
		var r AttributeRequest
		_ = r.parse(req)
		err = e.valid[r.Attribute].put(rep)

	default:
		return fmt.Errorf("%w: op %d", display.ErrProtocol, op)
	}
	if err != nil {
		return err
	}

	if e.corrupt != nil {
		e.corrupt(op, rep)
	}
	return nil
}

// Close implements Transport.
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
