// Package codec turns host command text into typed commands and resolves the
// device state into displayed pixel colors. It has no side effects.
package codec

import (
	"fmt"

	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/color"
)

// Command is one parsed host command. The concrete types are On, Off,
// SetColor, SetMode, SetLength and SetBrightness.
type Command interface {
	fmt.Stringer
	command()
}

// On powers the strip on and resumes the remembered mode.
type On struct{}

// Off darkens the strip and remembers the active mode.
type Off struct{}

// SetColor replaces the stored base color.
type SetColor struct {
	Color color.RGB
}

// SetMode selects a theme and its frame period in milliseconds.
type SetMode struct {
	Theme animation.Theme
	Speed uint16
}

// SetLength changes the number of pixels on the strip.
type SetLength struct {
	N int
}

// SetBrightness changes the 0-255 output scale.
type SetBrightness struct {
	Level uint8
}

func (On) command()            {}
func (Off) command()           {}
func (SetColor) command()      {}
func (SetMode) command()       {}
func (SetLength) command()     {}
func (SetBrightness) command() {}

func (On) String() string  { return "on" }
func (Off) String() string { return "off" }

func (c SetColor) String() string { return c.Color.Hex() }

func (c SetMode) String() string {
	return fmt.Sprintf("T:%d S:%d", uint8(c.Theme), c.Speed)
}

func (c SetLength) String() string {
	return fmt.Sprintf("L:%d", c.N)
}

func (c SetBrightness) String() string {
	return fmt.Sprintf("B:%d", c.Level)
}
