package nvkms

import (
	"fmt"
	"math/bits"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// AttributeMap names the NVKMS attributes behind one display kind. Get and
// Set differ where the driver separates "requested" from "current".
type AttributeMap struct {
	Get   Attribute
	Set   Attribute
	Valid Attribute
}

var attributeMaps = map[display.Kind]AttributeMap{
	display.KindVibrance:   {Get: AttrDigitalVibrance, Set: AttrDigitalVibrance, Valid: AttrDigitalVibrance},
	display.KindSharpening: {Get: AttrImageSharpening, Set: AttrImageSharpening, Valid: AttrImageSharpening},
	display.KindColorRange: {Get: AttrRequestedColorRange, Set: AttrRequestedColorRange, Valid: AttrRequestedColorRange},
	display.KindColorSpace: {Get: AttrRequestedColorSpace, Set: AttrRequestedColorSpace, Valid: AttrRequestedColorSpace},
	display.KindDithering:  {Get: AttrCurrentDithering, Set: AttrRequestedDithering, Valid: AttrCurrentDithering},
}

// AttributeFor returns the NVKMS attributes for kind.
func AttributeFor(kind display.Kind) (AttributeMap, error) {
	m, ok := attributeMaps[kind]
	if !ok {
		return AttributeMap{}, fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}
	return m, nil
}

// EncodeValue converts a display value into the raw value written to the
// Set attribute. Dithering is written as the requested tri-state.
func EncodeValue(v display.Value) int64 {
	if v.Kind == display.KindDithering {
		if v.Bool() {
			return DitheringEnabled
		}
		return DitheringDisabled
	}
	return v.Raw
}

// DecodeValue converts a raw value read from the Get attribute. Boolean
// kinds reject anything but 0 and 1.
func DecodeValue(kind display.Kind, raw int64) (display.Value, error) {
	if kind.Shape() == display.ShapeBool && raw != 0 && raw != 1 {
		return display.Value{}, fmt.Errorf("%w: %s value %d is not boolean", ErrDecode, kind, raw)
	}
	return display.IntValue(kind, raw), nil
}

// Domain interprets the reply for kind. The type tag must match the shape
// of the kind; a mismatch is a decode error. Default is left zero for the
// caller to fill.
func (r ValidValuesReply) Domain(kind display.Kind) (display.ValueRange, error) {
	if !r.Readable && !r.Writable {
		return display.ValueRange{}, fmt.Errorf("%w: %s", display.ErrUnsupported, kind)
	}

	mismatch := fmt.Errorf("%w: %s reply tagged %s for %s domain", ErrDecode, kind, r.Type, kind.Shape())

	switch kind.Shape() {
	case display.ShapeRange:
		if r.Type != ValueTypeRange {
			return display.ValueRange{}, mismatch
		}
		return display.NewRange(r.Min, r.Max, 0), nil

	case display.ShapeEnum:
		if r.Type != ValueTypeIntBits {
			return display.ValueRange{}, mismatch
		}
		if r.Bits == 0 {
			return display.ValueRange{}, fmt.Errorf("%w: %s has an empty legal set", ErrDecode, kind)
		}
		legal := make([]int64, 0, bits.OnesCount64(r.Bits))
		for b := r.Bits; b != 0; b &= b - 1 {
			legal = append(legal, int64(bits.TrailingZeros64(b)))
		}
		return display.NewEnum(legal[0], legal...), nil

	case display.ShapeBool:
		if r.Type != ValueTypeBoolean {
			return display.ValueRange{}, mismatch
		}
		return display.NewBool(false), nil
	}

	return display.ValueRange{}, fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
}
