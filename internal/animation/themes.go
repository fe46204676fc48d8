package animation

import (
	"ledstrip-controller/internal/color"
)

// Params is everything besides the frame counter that a frame depends on.
type Params struct {
	Length     int
	Color      color.RGB
	Brightness uint8
}

type frameFunc func(buf []color.RGB, n uint32, base color.RGB)

var frameFuncs = [themeCount]frameFunc{
	ThemeStatic:              static,
	ThemeRainbow:             rainbow,
	ThemeRainbowCycle:        rainbowCycle,
	ThemeBreath:              breath,
	ThemeColorWipe:           colorWipe,
	ThemeBlink:               blink,
	ThemeTheaterChaseRainbow: theaterChaseRainbow,
	ThemeSpectrum:            spectrum,
}

// Wheel maps a phase on the 256-step color wheel to a saturated color:
// 0 is red, 85 green and 170 blue.
func Wheel(pos uint8) color.RGB {
	pos = 0xFF - pos
	switch {
	case pos < 85:
		return color.RGB{R: 0xFF - pos*3, G: 0, B: pos * 3}
	case pos < 170:
		pos -= 85
		return color.RGB{R: 0, G: pos * 3, B: 0xFF - pos*3}
	default:
		pos -= 170
		return color.RGB{R: pos * 3, G: 0xFF - pos*3, B: 0}
	}
}

// Frame computes frame n of theme t. It is a pure function of its inputs.
func Frame(t Theme, n uint32, p Params) []color.RGB {
	if p.Length <= 0 {
		return nil
	}
	buf := make([]color.RGB, p.Length)
	fn := static
	if t.Valid() {
		fn = frameFuncs[t]
	}
	fn(buf, n, p.Color)
	for i := range buf {
		buf[i] = buf[i].Scale(p.Brightness)
	}
	return buf
}

func fill(buf []color.RGB, c color.RGB) {
	for i := range buf {
		buf[i] = c
	}
}

func static(buf []color.RGB, _ uint32, base color.RGB) {
	fill(buf, base)
}

func rainbow(buf []color.RGB, n uint32, _ color.RGB) {
	fill(buf, Wheel(uint8(n)))
}

func rainbowCycle(buf []color.RGB, n uint32, _ color.RGB) {
	for i := range buf {
		buf[i] = Wheel(uint8((uint32(i*256/len(buf)) + n) & 0xFF))
	}
}

// breath ramps the stored color 0..255..0 over 512 frames.
func breath(buf []color.RGB, n uint32, base color.RGB) {
	phase := n % 512
	level := phase
	if phase > 0xFF {
		level = 511 - phase
	}
	fill(buf, base.Scale(uint8(level)))
}

// colorWipe lights the strip pixel by pixel, then darkens it the same way.
func colorWipe(buf []color.RGB, n uint32, base color.RGB) {
	size := uint32(len(buf))
	step := n % (2 * size)
	for i := range buf {
		lit := uint32(i) <= step
		if step >= size {
			lit = uint32(i) > step-size
		}
		if lit {
			buf[i] = base
		} else {
			buf[i] = color.Black
		}
	}
}

func blink(buf []color.RGB, n uint32, base color.RGB) {
	if n%2 == 0 {
		fill(buf, base)
		return
	}
	fill(buf, color.Black)
}

func theaterChaseRainbow(buf []color.RGB, n uint32, _ color.RGB) {
	for i := range buf {
		if (uint32(i)+n)%3 == 0 {
			buf[i] = Wheel(uint8(uint32(i) + n))
		} else {
			buf[i] = color.Black
		}
	}
}

func spectrum(buf []color.RGB, n uint32, _ color.RGB) {
	fill(buf, color.FromHSV(float64(n%360)))
}
