package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/codec"
	"ledstrip-controller/internal/color"
)

// The Translate functions turn Home Assistant style payloads into strip
// command text. They only check shape; the strip codec has the final word.

var errPayload = errors.New("unrecognized payload")

// TranslatePower accepts ON/OFF, true/false and 1/0.
func TranslatePower(payload string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "true", "1":
		return "on", nil
	case "off", "false", "0":
		return "off", nil
	}
	return "", errors.Wrapf(errPayload, "power %q", payload)
}

// TranslateColor accepts "#RRGGBB", "RRGGBB" or "r,g,b".
func TranslateColor(payload string) (string, error) {
	p := strings.TrimSpace(payload)
	if strings.Contains(p, ",") {
		parts := strings.Split(p, ",")
		if len(parts) != 3 {
			return "", errors.Wrapf(errPayload, "color %q", payload)
		}
		var rgb [3]uint8
		for i, part := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
			if err != nil {
				return "", errors.Wrapf(err, "color %q", payload)
			}
			rgb[i] = uint8(v)
		}
		return color.RGB{R: rgb[0], G: rgb[1], B: rgb[2]}.Hex(), nil
	}
	c, err := color.ParseHex(p)
	if err != nil {
		return "", errors.Wrapf(err, "color %q", payload)
	}
	return c.Hex(), nil
}

// TranslateEffect accepts a theme name or id, optionally followed by a
// speed ("rainbow 200", "2,50"). "none" selects the static theme.
func TranslateEffect(payload string, defaultSpeed uint16) (string, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(payload), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 || len(fields) > 2 {
		return "", errors.Wrapf(errPayload, "effect %q", payload)
	}

	var theme animation.Theme
	if strings.EqualFold(fields[0], "none") {
		theme = animation.ThemeStatic
	} else {
		t, ok := animation.LookupTheme(fields[0])
		if !ok || !t.Valid() {
			return "", errors.Wrapf(errPayload, "effect %q", payload)
		}
		theme = t
	}

	speed := defaultSpeed
	if len(fields) == 2 {
		v, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return "", errors.Wrapf(err, "effect speed %q", payload)
		}
		speed = uint16(v)
	}
	return codec.SetMode{Theme: theme, Speed: speed}.String(), nil
}

// TranslateBrightness accepts an integer 0..255.
func TranslateBrightness(payload string) (string, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(payload), 10, 8)
	if err != nil {
		return "", errors.Wrapf(err, "brightness %q", payload)
	}
	return fmt.Sprintf("B:%d", v), nil
}

// TranslateLength accepts a positive pixel count.
func TranslateLength(payload string) (string, error) {
	v, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil || v <= 0 {
		return "", errors.Wrapf(errPayload, "length %q", payload)
	}
	return fmt.Sprintf("L:%d", v), nil
}
