package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/codec"
	"ledstrip-controller/internal/core"
)

func validateCommand(command string) error {
	_, err := codec.Parse(command)
	return err
}

func newTestScheduler(t *testing.T, file string) (*Scheduler, core.CommandChannel, *int) {
	t.Helper()
	ch := make(core.CommandChannel, 4)
	changes := 0
	s := NewScheduler(ch, file, Options{
		Validate: validateCommand,
		OnChange: func() { changes++ },
	})
	return s, ch, &changes
}

func TestAddPersistsAndReloads(t *testing.T) {
	file := filepath.Join(t.TempDir(), "schedules.json")
	s, _, changes := newTestScheduler(t, file)

	id1, err := s.Add("0 7 * * *", "on")
	require.NoError(t, err)
	id2, err := s.Add("30 22 * * *", "T:1 S:200")
	require.NoError(t, err)
	assert.Equal(t, 2, *changes)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, id1, list[0].ID)
	assert.Equal(t, "on", list[0].Command)
	assert.Equal(t, id2, list[1].ID)

	_, err = os.Stat(file)
	require.NoError(t, err)

	reloaded, _, _ := newTestScheduler(t, file)
	got := reloaded.List()
	require.Len(t, got, 2)
	assert.Equal(t, "0 7 * * *", got[0].Spec)
	assert.Equal(t, "T:1 S:200", got[1].Command)
}

func TestAddRejectsBadInput(t *testing.T) {
	s, _, changes := newTestScheduler(t, filepath.Join(t.TempDir(), "s.json"))

	_, err := s.Add("0 7 * * *", "#zzzzzz")
	assert.True(t, errors.Is(err, codec.ErrMalformedColor))

	_, err = s.Add("every tuesday", "on")
	assert.Error(t, err)

	assert.Empty(t, s.List())
	assert.Equal(t, 0, *changes)
}

func TestRemove(t *testing.T) {
	file := filepath.Join(t.TempDir(), "s.json")
	s, _, _ := newTestScheduler(t, file)
	id, err := s.Add("@hourly", "off")
	require.NoError(t, err)

	require.NoError(t, s.Remove(id))
	assert.Empty(t, s.List())
	assert.True(t, errors.Is(s.Remove(id), ErrNotFound))

	reloaded, _, _ := newTestScheduler(t, file)
	assert.Empty(t, reloaded.List())
}

func TestTriggerQueuesCommand(t *testing.T) {
	s, ch, _ := newTestScheduler(t, filepath.Join(t.TempDir(), "s.json"))
	id, err := s.Add("@daily", "L:30")
	require.NoError(t, err)

	require.NoError(t, s.Trigger(id))
	cmd := <-ch
	assert.Equal(t, core.CmdText, cmd.Type)
	assert.Equal(t, "L:30", cmd.Text)
	assert.Equal(t, core.SourceSchedule, cmd.Source)

	assert.True(t, errors.Is(s.Trigger(id+100), ErrNotFound))
}

func TestGetAllIsACopy(t *testing.T) {
	s, _, _ := newTestScheduler(t, filepath.Join(t.TempDir(), "s.json"))
	_, err := s.Add("@daily", "on")
	require.NoError(t, err)

	all := s.GetAll()
	for id := range all {
		delete(all, id)
	}
	assert.Len(t, s.List(), 1)
}

func TestLoadSkipsInvalidEntries(t *testing.T) {
	file := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(file, []byte(`[
		{"spec": "@daily", "command": "on"},
		{"spec": "nonsense", "command": "off"},
		{"spec": "@hourly", "command": "dance"}
	]`), 0o644))

	s, _, _ := newTestScheduler(t, file)
	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "on", list[0].Command)
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, filepath.Join(t.TempDir(), "s.json"))
	s.Start()
	s.Stop()
}
