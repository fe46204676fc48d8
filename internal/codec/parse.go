package codec

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/color"
)

// MaxLength bounds SetLength so a typo cannot allocate an absurd buffer.
const MaxLength = 4096

// Parse classifies one command, already stripped of any routing prefix.
// Accepted forms (case-insensitive, surrounding whitespace ignored):
//
//	on | off | #RRGGBB | T:<theme> S:<speed> | L:<length> | B:<level>
//
// Any other non-empty text is tried as a color.
func Parse(text string) (Command, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fail(UnknownCommand, text, errors.New("empty command"))
	}
	lower := strings.ToLower(s)

	switch {
	case lower == "on":
		return On{}, nil
	case lower == "off":
		return Off{}, nil
	case strings.HasPrefix(lower, "t:"):
		return parseMode(lower, s)
	case strings.HasPrefix(lower, "l:"):
		return parseLength(lower[2:], s)
	case strings.HasPrefix(lower, "b:"):
		return parseBrightness(lower[2:], s)
	}
	return parseColor(s)
}

func parseColor(s string) (Command, error) {
	c, err := color.ParseHex(s)
	if err == nil {
		return SetColor{Color: c}, nil
	}
	if strings.HasPrefix(s, "#") {
		return nil, fail(MalformedColor, s, err)
	}
	return nil, fail(UnknownCommand, s, nil)
}

// parseMode reads "t:<theme> s:<speed>". Spaces, commas or nothing at all
// may separate the two fields.
func parseMode(lower, input string) (Command, error) {
	body := lower[2:]
	idx := strings.Index(body, "s:")
	if idx < 0 {
		return nil, fail(MalformedMode, input, errors.New("missing speed"))
	}
	themeField := strings.Trim(body[:idx], " \t,;")
	speedField := strings.TrimSpace(body[idx+2:])
	if themeField == "" {
		return nil, fail(MalformedMode, input, errors.New("missing theme"))
	}
	if speedField == "" {
		return nil, fail(MalformedMode, input, errors.New("missing speed"))
	}

	theme, err := strconv.ParseUint(themeField, 10, 8)
	if err != nil {
		return nil, fail(MalformedMode, input, errors.Wrap(err, "theme"))
	}
	if !animation.Theme(theme).Valid() {
		return nil, fail(MalformedMode, input, errors.Errorf("unknown theme %d", theme))
	}
	speed, err := strconv.ParseUint(speedField, 10, 16)
	if err != nil {
		return nil, fail(MalformedMode, input, errors.Wrap(err, "speed"))
	}
	return SetMode{Theme: animation.Theme(theme), Speed: uint16(speed)}, nil
}

func parseLength(field, input string) (Command, error) {
	n, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return nil, fail(MalformedLength, input, err)
	}
	if n <= 0 || n > MaxLength {
		return nil, fail(MalformedLength, input, errors.Errorf("length must be 1..%d", MaxLength))
	}
	return SetLength{N: n}, nil
}

func parseBrightness(field, input string) (Command, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
	if err != nil {
		return nil, fail(MalformedBrightness, input, err)
	}
	return SetBrightness{Level: uint8(n)}, nil
}
