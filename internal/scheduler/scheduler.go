package scheduler

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"ledstrip-controller/internal/core"
)

// ScheduleEntry defines the structure for a saved schedule.
type ScheduleEntry struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Schedule is an entry together with its live cron id.
type Schedule struct {
	ID int `json:"id"`
	ScheduleEntry
}

// ErrNotFound is returned by Remove and Trigger for an unknown id.
var ErrNotFound = errors.New("scheduler: no such schedule")

// Scheduler fires command text at cron times and persists its entries.
type Scheduler struct {
	cron           *cron.Cron
	store          map[cron.EntryID]ScheduleEntry
	commandChannel core.CommandChannel
	validate       func(command string) error
	onChange       func()
	mu             sync.RWMutex
	schedulesFile  string
	logger         *log.Entry
}

// Options tune a Scheduler. Validate rejects commands the strip would not
// accept; OnChange fires after every add or remove.
type Options struct {
	Validate func(command string) error
	OnChange func()
}

// NewScheduler creates a scheduler and loads schedulesFile if it exists.
func NewScheduler(cmdChan core.CommandChannel, schedulesFile string, opts Options) *Scheduler {
	s := &Scheduler{
		cron:           cron.New(),
		store:          make(map[cron.EntryID]ScheduleEntry),
		commandChannel: cmdChan,
		validate:       opts.Validate,
		onChange:       opts.OnChange,
		schedulesFile:  schedulesFile,
		logger:         log.WithField("component", "scheduler"),
	}
	s.load()
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started")
}

// Stop halts the cron ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}

// Add validates and registers a new schedule, then saves the file.
func (s *Scheduler) Add(spec, command string) (int, error) {
	spec = strings.TrimSpace(spec)
	command = strings.TrimSpace(command)
	if s.validate != nil {
		if err := s.validate(command); err != nil {
			return 0, errors.Wrapf(err, "schedule command %q", command)
		}
	}

	s.mu.Lock()
	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		s.mu.Unlock()
		return 0, errors.Wrapf(err, "schedule spec %q", spec)
	}
	s.store[id] = ScheduleEntry{Spec: spec, Command: command}
	err = s.save()
	s.mu.Unlock()

	s.logger.Infof("added schedule %d: %s -> %s", id, spec, command)
	s.changed()
	return int(id), err
}

// Remove deletes a schedule, then saves the file.
func (s *Scheduler) Remove(id int) error {
	s.mu.Lock()
	entryID := cron.EntryID(id)
	if _, ok := s.store[entryID]; !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrNotFound, "id %d", id)
	}
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	err := s.save()
	s.mu.Unlock()

	s.logger.Infof("removed schedule %d", id)
	s.changed()
	return err
}

// Trigger runs a schedule's command immediately.
func (s *Scheduler) Trigger(id int) error {
	s.mu.RLock()
	entry, ok := s.store[cron.EntryID(id)]
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNotFound, "id %d", id)
	}
	s.execute(entry.Command)
	return nil
}

// GetAll returns a deep copy of the current schedules.
func (s *Scheduler) GetAll() map[cron.EntryID]ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepcopy.Copy(s.store).(map[cron.EntryID]ScheduleEntry)
}

// List returns the schedules ordered by id.
func (s *Scheduler) List() []Schedule {
	all := s.GetAll()
	out := make([]Schedule, 0, len(all))
	for id, e := range all {
		out = append(out, Schedule{ID: int(id), ScheduleEntry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) execute(command string) {
	s.logger.Infof("executing scheduled command: %s", command)
	ok := s.commandChannel.TrySend(core.Command{
		Type:   core.CmdText,
		Text:   command,
		Source: core.SourceSchedule,
	})
	if !ok {
		s.logger.Warnf("command queue full, dropping scheduled command %q", command)
	}
}

func (s *Scheduler) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// save writes the entries in id order. Callers hold mu.
func (s *Scheduler) save() error {
	entries := make([]ScheduleEntry, 0, len(s.store))
	ids := make([]int, 0, len(s.store))
	for id := range s.store {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		entries = append(entries, s.store[cron.EntryID(id)])
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal schedules")
	}
	if err := os.WriteFile(s.schedulesFile, data, 0o644); err != nil {
		s.logger.WithError(err).Error("failed to save schedules")
		return errors.Wrapf(err, "write %s", s.schedulesFile)
	}
	return nil
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Error("failed to read schedule file")
		}
		return
	}

	var entries []ScheduleEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.WithError(err).Error("failed to decode schedule file")
		return
	}

	s.logger.Infof("loading %d schedules from '%s'", len(entries), s.schedulesFile)
	for _, entry := range entries {
		jobEntry := entry
		if s.validate != nil {
			if err := s.validate(jobEntry.Command); err != nil {
				s.logger.WithError(err).Warnf("skipping schedule %q", jobEntry.Command)
				continue
			}
		}
		newID, err := s.cron.AddFunc(jobEntry.Spec, func() { s.execute(jobEntry.Command) })
		if err != nil {
			s.logger.WithError(err).Warnf("skipping schedule spec %q", jobEntry.Spec)
			continue
		}
		s.store[newID] = jobEntry
	}
}
