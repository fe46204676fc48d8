package codec

import (
	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/color"
)

// View is the part of the device state that decides what a pixel shows.
type View struct {
	Power      bool
	Mode       animation.Mode
	Color      color.RGB
	Brightness uint8
}

// PixelAt returns the displayed color of pixel i. Animated modes take the
// pixel from frame, which the animation scheduler already scaled; a missing
// pixel is black.
func (v View) PixelAt(i int, frame []color.RGB) color.RGB {
	switch {
	case !v.Power:
		return color.Black
	case v.Mode.IsStatic():
		return v.Color.Scale(v.Brightness)
	case i >= 0 && i < len(frame):
		return frame[i]
	}
	return color.Black
}
