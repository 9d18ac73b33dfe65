package cmm

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Space is a device colour space the transform understands.
type Space int

const (
	Unsupported Space = iota
	Gray
	RGB
	CMYK
)

func (s Space) String() string {
	switch s {
	case Gray:
		return "DeviceGray"
	case RGB:
		return "DeviceRGB"
	case CMYK:
		return "DeviceCMYK"
	}
	return "Unsupported"
}

// Components returns the number of colour components of s.
func (s Space) Components() int {
	switch s {
	case Gray:
		return 1
	case RGB:
		return 3
	case CMYK:
		return 4
	}
	return 0
}

// SpaceFromName maps a colour space name, including the inline image
// abbreviations, to a device space. Anything else is Unsupported.
func SpaceFromName(name string) Space {
	switch name {
	case "DeviceGray", "G":
		return Gray
	case "DeviceRGB", "RGB":
		return RGB
	case "DeviceCMYK", "CMYK":
		return CMYK
	}
	return Unsupported
}

// Color is an RGB triple with components in [0,1].
type Color struct {
	R, G, B float64
}

// Color8 builds a Color from 0-255 components.
func Color8(r, g, b uint8) Color {
	return Color{float64(r) / 255, float64(g) / 255, float64(b) / 255}
}

// Value is the HSV value channel, max(r,g,b).
func (c Color) Value() float64 { return max(c.R, c.G, c.B) }

// RGB8 returns the components scaled to 0-255.
func (c Color) RGB8() (uint8, uint8, uint8) {
	return to8(c.R), to8(c.G), to8(c.B)
}

func to8(v float64) uint8 { return uint8(clamp(v, 0, 1)*255 + 0.5) }

// ToRGB normalises device components to RGB. Components are clamped to
// [0,1] first.
func ToRGB(space Space, comps []float64) (Color, error) {
	if n := space.Components(); n == 0 || len(comps) != n {
		return Color{}, fmt.Errorf("%v expects %d components, got %d", space, space.Components(), len(comps))
	}
	switch space {
	case Gray:
		v := clamp(comps[0], 0, 1)
		return Color{v, v, v}, nil
	case RGB:
		return Color{clamp(comps[0], 0, 1), clamp(comps[1], 0, 1), clamp(comps[2], 0, 1)}, nil
	default:
		c, m, y, k := clamp(comps[0], 0, 1), clamp(comps[1], 0, 1), clamp(comps[2], 0, 1), clamp(comps[3], 0, 1)
		return Color{(1 - c) * (1 - k), (1 - m) * (1 - k), (1 - y) * (1 - k)}, nil
	}
}

// FromRGB expresses c in space: Rec.601 luma for gray, naive black
// generation for CMYK.
func FromRGB(space Space, c Color) []float64 {
	switch space {
	case Gray:
		return []float64{clamp(0.299*c.R+0.587*c.G+0.114*c.B, 0, 1)}
	case RGB:
		return []float64{c.R, c.G, c.B}
	case CMYK:
		k := 1 - c.Value()
		if k >= 1 {
			return []float64{0, 0, 0, 1}
		}
		return []float64{(1 - c.R - k) / (1 - k), (1 - c.G - k) / (1 - k), (1 - c.B - k) / (1 - k), k}
	}
	return nil
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
