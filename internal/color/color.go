// Package color holds the 24-bit RGB value shared by the codec, the animation
// themes and the pixel drivers.
package color

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// RGB is a 24-bit color, one byte per channel.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

var (
	Black = RGB{}
	White = RGB{R: 0xFF, G: 0xFF, B: 0xFF}
)

// ErrInvalidHex is returned for anything that is not exactly six hex digits.
var ErrInvalidHex = errors.New("expected six hex digits")

// Hex formats the color as "#RRGGBB".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return c.Hex()
}

// Uint32 packs the color as 0x00RRGGBB.
func (c RGB) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// IsBlack reports whether all channels are zero.
func (c RGB) IsBlack() bool {
	return c == Black
}

// Scale multiplies every channel by level/255. The stored color is not
// modified, Scale returns a new value.
func (c RGB) Scale(level uint8) RGB {
	if level == 0xFF {
		return c
	}
	return RGB{
		R: scale(c.R, level),
		G: scale(c.G, level),
		B: scale(c.B, level),
	}
}

func scale(v, level uint8) uint8 {
	return uint8(uint16(v) * uint16(level) / 0xFF)
}

// ParseHex parses "#RRGGBB". The leading '#' is optional, surrounding
// whitespace is ignored and digits are case-insensitive.
func ParseHex(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if !IsHex6(s) {
		return RGB{}, errors.Wrapf(ErrInvalidHex, "parse %q", s)
	}
	// colorful.Hex also accepts the 3-digit short form, so the length check
	// above has to stay in front of it.
	c, err := colorful.Hex("#" + strings.ToLower(s))
	if err != nil {
		return RGB{}, errors.Wrapf(err, "parse %q", s)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// IsHex6 reports whether s is exactly six hexadecimal digits.
func IsHex6(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}

// FromHSV converts a hue in degrees with full saturation and value, used by
// the spectrum theme.
func FromHSV(hue float64) RGB {
	r, g, b := colorful.Hsv(hue, 1, 1).Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}
