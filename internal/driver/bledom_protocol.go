package driver

import "ledstrip-controller/internal/color"

// ELK-BLEDOM controllers take fixed 9-byte frames: 0x7E, length, opcode,
// arguments, padding, 0xEF.

func powerPayload(on bool) []byte {
	var v byte
	if on {
		v = 0x01
	}
	return []byte{0x7E, 0x04, 0x04, v, 0x00, v, 0xFF, 0x00, 0xEF}
}

func colorPayload(c color.RGB) []byte {
	return []byte{0x7E, 0x07, 0x05, 0x03, c.R, c.G, c.B, 0x10, 0xEF}
}

// Brightness on these controllers is 0..100.
func brightnessPayload(percent uint8) []byte {
	if percent > 100 {
		percent = 100
	}
	return []byte{0x7E, 0x04, 0x01, percent, 0xFF, 0xFF, 0xFF, 0x00, 0xEF}
}

// mirror is the single-zone state a BLEDOM strip can actually display.
type mirror struct {
	valid bool
	on    bool
	color color.RGB
}

// mirrorOf reduces a frame to pixel 0; an all-dark frame means power off.
func mirrorOf(frame []color.RGB) mirror {
	m := mirror{valid: true}
	for _, px := range frame {
		if !px.IsBlack() {
			m.on = true
			break
		}
	}
	if m.on {
		m.color = frame[0]
	}
	return m
}

// diff returns the payloads that move the device from prev to next.
func (next mirror) diff(prev mirror) [][]byte {
	if !next.valid {
		return nil
	}
	var out [][]byte
	if !prev.valid || prev.on != next.on {
		out = append(out, powerPayload(next.on))
	}
	if next.on && (!prev.valid || !prev.on || prev.color != next.color) {
		out = append(out, colorPayload(next.color))
	}
	return out
}
