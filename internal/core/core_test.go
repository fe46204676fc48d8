package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/strip"
)

func TestEventBusDelivers(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe(StatusReportedEvent, FrameRenderedEvent)
	other := bus.Subscribe(StateChangedEvent)

	require.NoError(t, bus.Send("desk on"))
	ev := <-sub
	assert.Equal(t, StatusReportedEvent, ev.Type)
	assert.Equal(t, "desk on", ev.Payload)
	assert.Empty(t, other)

	bus.Unsubscribe(sub, StatusReportedEvent)
	bus.Publish(Event{Type: StatusReportedEvent, Payload: "desk off"})
	assert.Empty(t, sub)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe(FrameRenderedEvent)
	for i := 0; i < cap(sub)+10; i++ {
		bus.Publish(Event{Type: FrameRenderedEvent})
	}
	assert.Len(t, sub, cap(sub))
	assert.Equal(t, uint64(10), bus.Dropped())
}

func TestEventBusDropCloses(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe(StateChangedEvent, StatusReportedEvent)
	bus.Drop(sub)
	_, open := <-sub
	assert.False(t, open)
	bus.Publish(Event{Type: StateChangedEvent})
	assert.NotPanics(t, func() { bus.Drop(sub) })
}

func TestCommandChannelTrySend(t *testing.T) {
	ch := make(CommandChannel, 1)
	assert.True(t, ch.TrySend(Command{Type: CmdText, Text: "on", Source: SourceWeb}))
	assert.False(t, ch.TrySend(Command{Type: CmdRefresh}))
	assert.Equal(t, "on", (<-ch).Text)
}

func TestStateViews(t *testing.T) {
	s := NewState()
	s.SetSnapshot(strip.Snapshot{Name: "desk", Power: true, Length: 30})
	v := s.SetConnection(true, -60)
	assert.Equal(t, "desk", v.Name)
	assert.True(t, v.DriverConnected)
	assert.Equal(t, v, s.Clone())

	data, err := json.Marshal(v)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "desk", decoded["name"])
	assert.Equal(t, float64(30), decoded["length"])
	assert.Equal(t, float64(-60), decoded["rssi"])
}
