package display

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind is a visual attribute of a display.
type Kind string

// Supported attribute kinds.
const (
	// KindVibrance is the digital vibrance (saturation boost), a signed range.
	KindVibrance Kind = "vibrance"

	// KindSharpening is the image sharpening strength, an unsigned range.
	KindSharpening Kind = "sharpening"

	// KindColorRange selects full or limited RGB quantisation range.
	KindColorRange Kind = "color_range"

	// KindColorSpace selects the output color encoding.
	KindColorSpace Kind = "color_space"

	// KindDithering enables or disables output dithering.
	KindDithering Kind = "dithering"
)

// Kinds lists every supported kind in display order.
func Kinds() []Kind {
	return []Kind{KindVibrance, KindSharpening, KindColorRange, KindColorSpace, KindDithering}
}

// kindAliases maps accepted spellings to their canonical kind.
var kindAliases = map[string]Kind{
	"vibrance":         KindVibrance,
	"digitalvibrance":  KindVibrance,
	"digital_vibrance": KindVibrance,
	"sharpening":       KindSharpening,
	"imagesharpening":  KindSharpening,
	"image_sharpening": KindSharpening,
	"color_range":      KindColorRange,
	"colorrange":       KindColorRange,
	"color_space":      KindColorSpace,
	"colorspace":       KindColorSpace,
	"dithering":        KindDithering,
}

// ParseKind parses an attribute name. Matching ignores case, dashes and
// the "digital"/"image" prefixes used by other tools.
func ParseKind(s string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	if k, ok := kindAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Shape is the form of an attribute's value domain.
type Shape string

// Value domain shapes.
const (
	ShapeRange Shape = "range"
	ShapeEnum  Shape = "enum"
	ShapeBool  Shape = "bool"
)

// Shape returns the domain shape of the kind.
func (k Kind) Shape() Shape {
	switch k {
	case KindColorRange, KindColorSpace:
		return ShapeEnum
	case KindDithering:
		return ShapeBool
	default:
		return ShapeRange
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// Enumerated values for ColorRange.
const (
	ColorRangeFull    int64 = 0
	ColorRangeLimited int64 = 1
)

// Enumerated values for ColorSpace.
const (
	ColorSpaceRGB      int64 = 0
	ColorSpaceYCbCr422 int64 = 1
	ColorSpaceYCbCr444 int64 = 2
	ColorSpaceYCbCr420 int64 = 3
)

// labels holds the value names of enumerated and boolean kinds.
var labels = map[Kind]map[int64]string{
	KindColorRange: {
		ColorRangeFull:    "full",
		ColorRangeLimited: "limited",
	},
	KindColorSpace: {
		ColorSpaceRGB:      "rgb",
		ColorSpaceYCbCr422: "ycbcr422",
		ColorSpaceYCbCr444: "ycbcr444",
		ColorSpaceYCbCr420: "ycbcr420",
	},
	KindDithering: {
		0: "off",
		1: "on",
	},
}

// Value is an attribute value tagged with its kind.
type Value struct {
	Kind Kind  `json:"kind"`
	Raw  int64 `json:"raw"`
}

// IntValue builds a value of any kind from its raw integer.
func IntValue(k Kind, raw int64) Value {
	return Value{Kind: k, Raw: raw}
}

// BoolValue builds a boolean value.
func BoolValue(k Kind, on bool) Value {
	if on {
		return Value{Kind: k, Raw: 1}
	}
	return Value{Kind: k, Raw: 0}
}

// Bool interprets the value as a boolean.
func (v Value) Bool() bool {
	return v.Raw != 0
}

// String renders the value using its label when the kind has one.
func (v Value) String() string {
	if names, ok := labels[v.Kind]; ok {
		if name, ok := names[v.Raw]; ok {
			return name
		}
	}
	return strconv.FormatInt(v.Raw, 10)
}

// ParseValue parses text into a value of kind k. Labels ("limited", "on")
// and raw integers are both accepted.
func ParseValue(k Kind, s string) (Value, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	if names, ok := labels[k]; ok {
		for raw, name := range names {
			if name == text {
				return Value{Kind: k, Raw: raw}, nil
			}
		}
		if k.Shape() == ShapeBool {
			switch text {
			case "true", "enabled", "enable", "yes":
				return BoolValue(k, true), nil
			case "false", "disabled", "disable", "no":
				return BoolValue(k, false), nil
			}
		}
	}

	raw, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q is not a %s value", ErrInvalidAttributeValue, s, k)
	}
	return Value{Kind: k, Raw: raw}, nil
}

// ValueRange is the legal domain of an attribute on one display.
type ValueRange struct {
	Shape   Shape   `json:"shape"`
	Min     int64   `json:"min"`
	Max     int64   `json:"max"`
	Default int64   `json:"default"`
	Legal   []int64 `json:"legal,omitempty"`
}

// NewRange builds a ranged domain.
func NewRange(lo, hi, def int64) ValueRange {
	return ValueRange{Shape: ShapeRange, Min: lo, Max: hi, Default: def}
}

// NewEnum builds an enumerated domain from an explicit legal set.
func NewEnum(def int64, legal ...int64) ValueRange {
	set := slices.Clone(legal)
	slices.Sort(set)
	set = slices.Compact(set)
	r := ValueRange{Shape: ShapeEnum, Default: def, Legal: set}
	if len(set) > 0 {
		r.Min, r.Max = set[0], set[len(set)-1]
	}
	return r
}

// NewBool builds the two-element boolean domain.
func NewBool(def bool) ValueRange {
	r := ValueRange{Shape: ShapeBool, Min: 0, Max: 1, Legal: []int64{0, 1}}
	if def {
		r.Default = 1
	}
	return r
}

// Contains reports whether raw is in the domain.
func (r ValueRange) Contains(raw int64) bool {
	switch r.Shape {
	case ShapeEnum, ShapeBool:
		return slices.Contains(r.Legal, raw)
	default:
		return raw >= r.Min && raw <= r.Max
	}
}

// String renders the domain, e.g. "-1024..=1023" or "{0, 1}".
func (r ValueRange) String() string {
	if r.Shape == ShapeRange {
		return fmt.Sprintf("%d..=%d", r.Min, r.Max)
	}
	parts := make([]string, len(r.Legal))
	for i, v := range r.Legal {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
