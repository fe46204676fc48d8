package core

import (
	"sync"

	"ledstrip-controller/internal/strip"
)

// DeviceView is what hosts see of the device: the strip snapshot plus the
// driver link.
type DeviceView struct {
	strip.Snapshot
	DriverConnected bool  `json:"driver_connected"`
	RSSI            int16 `json:"rssi"`
}

// State holds the last published view of the device for readers outside
// the agent loop.
type State struct {
	mu   sync.RWMutex
	view DeviceView
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{}
}

// Clone returns a copy of the current view.
func (s *State) Clone() DeviceView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetSnapshot replaces the strip part of the view.
func (s *State) SetSnapshot(snap strip.Snapshot) DeviceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Snapshot = snap
	return s.view
}

// SetConnection updates the driver link state.
func (s *State) SetConnection(connected bool, rssi int16) DeviceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.DriverConnected = connected
	s.view.RSSI = rssi
	return s.view
}
