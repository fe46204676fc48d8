package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/scheduler"
	"ledstrip-controller/internal/strip"
)

type fakeSchedules struct {
	list []scheduler.Schedule
}

func (f *fakeSchedules) List() []scheduler.Schedule { return f.list }

func (f *fakeSchedules) Add(spec, command string) (int, error) {
	if spec == "" {
		return 0, errors.New("empty spec")
	}
	id := len(f.list) + 1
	f.list = append(f.list, scheduler.Schedule{ID: id, ScheduleEntry: scheduler.ScheduleEntry{Spec: spec, Command: command}})
	return id, nil
}

func (f *fakeSchedules) Remove(id int) error {
	for i, s := range f.list {
		if s.ID == id {
			f.list = append(f.list[:i], f.list[i+1:]...)
			return nil
		}
	}
	return scheduler.ErrNotFound
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func startServer(t *testing.T) (*Server, *websocket.Conn, core.CommandChannel, *core.EventBus, *fakeSchedules) {
	t.Helper()
	ch := make(core.CommandChannel, 8)
	bus := core.NewEventBus()
	sched := &fakeSchedules{}
	s := NewServer(Options{
		Commands:  ch,
		Bus:       bus,
		Schedules: sched,
		State: func() core.DeviceView {
			return core.DeviceView{Snapshot: strip.Snapshot{Name: "desk", Length: 10}}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	s.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		ts.Close()
	})
	return s, conn, ch, bus, sched
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) received {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message", msgType)
	return received{}
}

func TestInitialMessages(t *testing.T) {
	_, conn, _, _, _ := startServer(t)

	state := readMessage(t, conn)
	assert.Equal(t, MsgDeviceState, state.Type)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(state.Payload, &view))
	assert.Equal(t, "desk", view["name"])

	themes := readMessage(t, conn)
	assert.Equal(t, MsgThemeList, themes.Type)
	var list []themeInfo
	require.NoError(t, json.Unmarshal(themes.Payload, &list))
	require.NotEmpty(t, list)
	assert.Equal(t, "static", list[0].Name)

	assert.Equal(t, MsgScheduleList, readMessage(t, conn).Type)
}

func TestCommandsReachChannel(t *testing.T) {
	_, conn, ch, _, _ := startServer(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    CmdCommand,
		"payload": map[string]string{"text": "T:1 S:500"},
	}))
	select {
	case cmd := <-ch:
		assert.Equal(t, core.CmdText, cmd.Type)
		assert.Equal(t, "T:1 S:500", cmd.Text)
		assert.Equal(t, core.SourceWeb, cmd.Source)
	case <-time.After(5 * time.Second):
		t.Fatal("command not forwarded")
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": CmdRefresh}))
	select {
	case cmd := <-ch:
		assert.Equal(t, core.CmdRefresh, cmd.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("refresh not forwarded")
	}
}

func TestBadMessageGetsError(t *testing.T) {
	_, conn, _, _, _ := startServer(t)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	msg := readUntil(t, conn, MsgError)
	assert.Contains(t, string(msg.Payload), "unknown command type")
}

func TestBusEventsAreBroadcast(t *testing.T) {
	s, conn, _, bus, _ := startServer(t)
	readUntil(t, conn, MsgScheduleList)

	require.Eventually(t, func() bool { return s.Hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, bus.Send("desk on"))
	msg := readUntil(t, conn, MsgStatus)
	assert.JSONEq(t, `"desk on"`, string(msg.Payload))

	bus.Publish(core.Event{Type: core.FrameRenderedEvent, Payload: []string{"#FF0000"}})
	msg = readUntil(t, conn, MsgFrame)
	assert.JSONEq(t, `["#FF0000"]`, string(msg.Payload))
}

func TestScheduleCommands(t *testing.T) {
	s, conn, _, _, sched := startServer(t)
	readUntil(t, conn, MsgScheduleList)

	raw, _ := json.Marshal(map[string]interface{}{
		"type":    CmdAddSchedule,
		"payload": map[string]string{"spec": "@daily", "command": "on"},
	})
	require.NoError(t, s.handleMessage(raw))
	require.Len(t, sched.list, 1)

	raw, _ = json.Marshal(map[string]interface{}{
		"type":    CmdRemoveSchedule,
		"payload": map[string]int{"id": sched.list[0].ID},
	})
	require.NoError(t, s.handleMessage(raw))
	assert.Empty(t, sched.list)

	assert.True(t, errors.Is(s.handleMessage(raw), scheduler.ErrNotFound))
	assert.Error(t, s.handleMessage([]byte(`{"type":"command","payload":{"text":"  "}}`)))
	assert.Error(t, s.handleMessage([]byte(`not json`)))
}
