// Package color converts between the RGB triple a light strip stores and the
// hue/saturation/lightness values the HomeKit model speaks.
package color

import "math"

// RGB is an 8-bit per channel color as reported by the device
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HSL holds hue in [0,360), saturation and lightness in [0,100]
type HSL struct {
	H float64
	S float64
	L float64
}

// Rounded returns the color with every channel rounded to the nearest integer.
// A hue that rounds up to 360 wraps to 0.
func (c HSL) Rounded() HSL {
	h := math.Round(c.H)
	if h >= 360 {
		h -= 360
	}
	return HSL{H: h, S: math.Round(c.S), L: math.Round(c.L)}
}

// RGBToHSL converts an RGB triple to HSL. Achromatic input (r == g == b)
// yields hue 0 and saturation 0.
func RGBToHSL(r, g, b uint8) HSL {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC
	l := (maxC + minC) / 2

	if delta == 0 {
		return HSL{H: 0, S: 0, L: l * 100}
	}

	var s float64
	if l <= 0.5 {
		s = delta / (maxC + minC)
	} else {
		s = delta / (2 - maxC - minC)
	}

	var h float64
	switch maxC {
	case rf:
		h = (gf - bf) / delta
	case gf:
		h = 2 + (bf-rf)/delta
	default:
		h = 4 + (rf-gf)/delta
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h -= 360
	}

	return HSL{H: h, S: s * 100, L: l * 100}
}

// HSLToRGB converts HSL back to an RGB triple. Hue is taken modulo 360;
// saturation and lightness are clamped to [0,100].
func HSLToRGB(h, s, l float64) RGB {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = clamp(s, 0, 100) / 100
	l = clamp(l, 0, 100) / 100

	if s == 0 {
		v := to8(l)
		return RGB{R: v, G: v, B: v}
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	hk := h / 360

	return RGB{
		R: to8(hueToChannel(p, q, hk+1.0/3)),
		G: to8(hueToChannel(p, q, hk)),
		B: to8(hueToChannel(p, q, hk-1.0/3)),
	}
}

// HSVToRGB converts hue [0,360), saturation and value [0,100] to RGB, the
// conversion a strip applies to a /solidcolorhsv request.
func HSVToRGB(h, s, v float64) RGB {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = clamp(s, 0, 100) / 100
	v = clamp(v, 0, 100) / 100

	if s == 0 {
		c := to8(v)
		return RGB{R: c, G: c, B: c}
	}

	hh := h / 60.0
	i := int(hh)
	ff := hh - float64(i)
	p := v * (1.0 - s)
	q := v * (1.0 - s*ff)
	t := v * (1.0 - s*(1.0-ff))

	var r, g, b float64
	switch i {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return RGB{R: to8(r), G: to8(g), B: to8(b)}
}

func hueToChannel(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp(v, 0, 1) * 255))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
