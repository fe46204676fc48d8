// Package animation implements the theme catalogue and the frame scheduler
// that advances the active theme on every host tick.
package animation

import (
	"fmt"
	"strconv"
	"strings"
)

// Theme is the small integer tag a host uses to select an animation. The ids
// follow the WS2812FX numbering where 0 is the static mode.
type Theme uint8

const (
	ThemeStatic Theme = iota
	ThemeRainbow
	ThemeRainbowCycle
	ThemeBreath
	ThemeColorWipe
	ThemeBlink
	ThemeTheaterChaseRainbow
	ThemeSpectrum

	themeCount
)

var themeNames = [themeCount]string{
	ThemeStatic:              "static",
	ThemeRainbow:             "rainbow",
	ThemeRainbowCycle:        "rainbow_cycle",
	ThemeBreath:              "breath",
	ThemeColorWipe:           "color_wipe",
	ThemeBlink:               "blink",
	ThemeTheaterChaseRainbow: "theater_chase_rainbow",
	ThemeSpectrum:            "spectrum",
}

// Valid reports whether t names a known theme.
func (t Theme) Valid() bool {
	return t < themeCount
}

func (t Theme) String() string {
	if !t.Valid() {
		return "theme(" + strconv.Itoa(int(t)) + ")"
	}
	return themeNames[t]
}

// Themes lists every known theme in id order.
func Themes() []Theme {
	out := make([]Theme, 0, themeCount)
	for t := Theme(0); t < themeCount; t++ {
		out = append(out, t)
	}
	return out
}

// ThemeNames lists the names of every known theme in id order.
func ThemeNames() []string {
	return append([]string(nil), themeNames[:]...)
}

// LookupTheme resolves a theme by name or by its decimal id.
func LookupTheme(s string) (Theme, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		t := Theme(n)
		return t, t.Valid()
	}
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for i, name := range themeNames {
		if name == s {
			return Theme(i), true
		}
	}
	return 0, false
}

type modeKind uint8

const (
	kindStatic modeKind = iota
	kindAnimation
)

// Mode is either Static, the idle variant, or an animation of one theme.
// The zero value is Static.
type Mode struct {
	kind  modeKind
	theme Theme
}

// Static is the idle mode: the strip shows the stored color.
var Static = Mode{}

// Animation returns the mode that runs theme t. ThemeStatic maps to Static.
func Animation(t Theme) Mode {
	if t == ThemeStatic {
		return Static
	}
	return Mode{kind: kindAnimation, theme: t}
}

// IsStatic reports whether m is the idle variant.
func (m Mode) IsStatic() bool {
	return m.kind == kindStatic
}

// Theme returns the animated theme, ThemeStatic for the idle variant.
func (m Mode) Theme() Theme {
	if m.IsStatic() {
		return ThemeStatic
	}
	return m.theme
}

func (m Mode) String() string {
	switch m.kind {
	case kindStatic:
		return "static"
	case kindAnimation:
		return fmt.Sprintf("animation(%s)", m.theme)
	}
	return "unknown"
}
