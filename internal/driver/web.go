package driver

import (
	"ledstrip-controller/internal/color"
)

// Web is a virtual strip: every shown frame is handed to a sink, which the
// agent forwards to browsers over the websocket hub.
type Web struct {
	Memory
	onFrame func([]color.RGB)
}

func NewWeb(onFrame func([]color.RGB)) *Web {
	return &Web{onFrame: onFrame}
}

func (w *Web) Show() error {
	if err := w.Memory.Show(); err != nil {
		return err
	}
	if w.onFrame != nil {
		w.onFrame(w.Pixels())
	}
	return nil
}
