package strip

import (
	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/codec"
	"ledstrip-controller/internal/color"
)

// State is the complete device state of one strip.
type State struct {
	Power      bool
	Color      color.RGB
	Mode       animation.Mode
	LastMode   animation.Mode
	Speed      uint16
	Length     int
	Brightness uint8
}

// Effects tells the controller what an applied command requires besides
// rendering.
type Effects struct {
	// Reinit means the driver must be resized before the next render.
	Reinit bool
	// Activate means the animation scheduler restarts with the new mode.
	Activate bool
}

// Apply is the transition function. It never fails; parse errors are caught
// before a command exists.
func Apply(s State, cmd codec.Command) (State, Effects) {
	var fx Effects
	switch c := cmd.(type) {
	case codec.On:
		if !s.Power {
			s.Power = true
			s.Mode = s.LastMode
			fx.Activate = true
		}
	case codec.Off:
		if s.Power {
			s.LastMode = s.Mode
		}
		s.Power = false
		s.Mode = animation.Static
		fx.Activate = true
	case codec.SetColor:
		s.Color = c.Color
	case codec.SetMode:
		// Ignored while dark; On restores LastMode instead.
		if s.Power {
			s.Mode = animation.Animation(c.Theme)
			s.Speed = c.Speed
			fx.Activate = true
		}
	case codec.SetLength:
		s.Length = c.N
		fx.Reinit = true
	case codec.SetBrightness:
		s.Brightness = c.Level
	}
	return s, fx
}

func (s State) view() codec.View {
	return codec.View{
		Power:      s.Power,
		Mode:       s.Mode,
		Color:      s.Color,
		Brightness: s.Brightness,
	}
}

func (s State) params() animation.Params {
	return animation.Params{
		Length:     s.Length,
		Color:      s.Color,
		Brightness: s.Brightness,
	}
}

// StatusText is "on" or "off".
func (s State) StatusText() string {
	if s.Power {
		return "on"
	}
	return "off"
}

// Snapshot is the serializable view of a controller published to hosts.
type Snapshot struct {
	Name       string `json:"name"`
	Pin        int    `json:"pin"`
	Power      bool   `json:"power"`
	Color      string `json:"color"`
	Mode       string `json:"mode"`
	Theme      uint8  `json:"theme"`
	LastMode   string `json:"last_mode"`
	Speed      uint16 `json:"speed"`
	Length     int    `json:"length"`
	Brightness uint8  `json:"brightness"`
}
