package cmm

import "math"

// HSV holds hue in degrees [0,360) and saturation and value in [0,1].
type HSV struct {
	H, S, V float64
}

func RGBToHSV(c Color) HSV {
	v := c.Value()
	mn := min(c.R, c.G, c.B)
	d := v - mn
	if v == 0 {
		return HSV{}
	}
	s := d / v
	if d == 0 {
		return HSV{S: s, V: v}
	}
	var h float64
	switch v {
	case c.R:
		h = math.Mod((c.G-c.B)/d, 6)
	case c.G:
		h = (c.B-c.R)/d + 2
	default:
		h = (c.R-c.G)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return HSV{H: h, S: s, V: v}
}

func HSVToRGB(h HSV) Color {
	c := h.V * h.S
	hp := math.Mod(h.H, 360) / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := h.V - c
	return Color{r + m, g + m, b + m}
}
