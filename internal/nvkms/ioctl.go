package nvkms

import (
	"encoding/binary"
	"fmt"
)

// Direction is the data direction bits of an ioctl request number.
type Direction uint8

// Directions.
const (
	DirNone  Direction = 0
	DirWrite Direction = 1
	DirRead  Direction = 2
)

// RequestNumber is an encoded ioctl request number.
type RequestNumber uintptr

// EncodeRequest builds an ioctl request number: dir(2) | size(14) | type(8) | nr(8).
func EncodeRequest(dir Direction, typ byte, nr byte, size uint16) RequestNumber {
	return RequestNumber(dir)<<30 | RequestNumber(size&0x3fff)<<16 | RequestNumber(typ)<<8 | RequestNumber(nr)
}

func (r RequestNumber) String() string {
	var (
		dir  = Direction(r >> 30 & 0x03)
		size = r >> 16 & 0x3fff
		typ  = byte(r >> 8 & 0xff)
		nr   = byte(r & 0xff)
		str  string
	)
	if dir&DirWrite > 0 {
		str += " write"
	}
	if dir&DirRead > 0 {
		str += " read"
	}
	return fmt.Sprintf("ioctl%s '%c' %d (%d bytes)", str, typ, nr, size)
}

// Envelope layout constants.
const (
	// ioctlMagic is the NVKMS ioctl type byte.
	ioctlMagic = 'm'

	// ioctlNumber is the single NVKMS ioctl number; the operation travels in the envelope.
	ioctlNumber = 0

	// EnvelopeSize is the size of the ioctl argument: cmd(4) + size(4) + address(8).
	EnvelopeSize = 16
)

// IoctlRequest is the request number passed to the ioctl syscall.
var IoctlRequest = EncodeRequest(DirRead|DirWrite, ioctlMagic, ioctlNumber, EnvelopeSize)

// Envelope is the argument handed to the ioctl syscall.
type Envelope struct {
	Cmd     uint32
	Size    uint32
	Address uint64
}

// Bytes packs the envelope in wire order.
func (e Envelope) Bytes() []byte {
	b := make([]byte, EnvelopeSize)
	binary.LittleEndian.PutUint32(b[0:4], e.Cmd)
	binary.LittleEndian.PutUint32(b[4:8], e.Size)
	binary.LittleEndian.PutUint64(b[8:16], e.Address)
	return b
}
