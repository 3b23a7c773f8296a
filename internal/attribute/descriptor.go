package attribute

import (
	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Descriptor is the static knowledge about one attribute kind.
type Descriptor struct {
	Kind        display.Kind
	Shape       display.Shape
	Description string

	// SettingsName is the nvidia-settings attribute written by a set and,
	// unless SettingsReadName is set, read by a get.
	SettingsName string

	// SettingsReadName is the attribute read by a get when it differs from
	// the one written (dithering writes the request, reads the outcome).
	SettingsReadName string

	// Default is used when the driver does not report one.
	Default int64

	// Fallback is the domain assumed when the driver cannot be asked for
	// one (e.g., an older nvidia-settings that prints no valid values).
	Fallback display.ValueRange
}

// ReadName returns the nvidia-settings attribute read by a get.
func (d Descriptor) ReadName() string {
	if d.SettingsReadName != "" {
		return d.SettingsReadName
	}
	return d.SettingsName
}

var descriptors = map[display.Kind]Descriptor{
	display.KindVibrance: {
		Kind:         display.KindVibrance,
		Shape:        display.ShapeRange,
		Description:  "digital vibrance (saturation boost or reduction)",
		SettingsName: "DigitalVibrance",
		Default:      0,
		Fallback:     display.NewRange(-1024, 1023, 0),
	},
	display.KindSharpening: {
		Kind:         display.KindSharpening,
		Shape:        display.ShapeRange,
		Description:  "image sharpening strength",
		SettingsName: "ImageSharpening",
		Default:      0,
		Fallback:     display.NewRange(0, 255, 0),
	},
	display.KindColorRange: {
		Kind:         display.KindColorRange,
		Shape:        display.ShapeEnum,
		Description:  "RGB quantisation range (full or limited)",
		SettingsName: "ColorRange",
		Default:      display.ColorRangeFull,
		Fallback:     display.NewEnum(display.ColorRangeFull, display.ColorRangeFull, display.ColorRangeLimited),
	},
	display.KindColorSpace: {
		Kind:         display.KindColorSpace,
		Shape:        display.ShapeEnum,
		Description:  "output color encoding",
		SettingsName: "ColorSpace",
		Default:      display.ColorSpaceRGB,
		Fallback: display.NewEnum(display.ColorSpaceRGB,
			display.ColorSpaceRGB, display.ColorSpaceYCbCr422, display.ColorSpaceYCbCr444, display.ColorSpaceYCbCr420),
	},
	display.KindDithering: {
		Kind:             display.KindDithering,
		Shape:            display.ShapeBool,
		Description:      "output dithering",
		SettingsName:     "Dithering",
		SettingsReadName: "CurrentDithering",
		Default:          1,
		Fallback:         display.NewBool(true),
	},
}

// Describe returns the descriptor for kind.
func Describe(kind display.Kind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// Descriptors returns every descriptor in display order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for _, k := range display.Kinds() {
		out = append(out, descriptors[k])
	}
	return out
}
