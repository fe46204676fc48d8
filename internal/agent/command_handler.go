package agent

import (
	"bytes"

	"github.com/cnf/structhash"
	log "github.com/sirupsen/logrus"

	"ledstrip-controller/internal/core"
)

// handleCommand runs one queued command on the agent loop and publishes the
// resulting state.
func (a *Agent) handleCommand(cmd core.Command) {
	logger := a.logger.WithFields(log.Fields{"source": cmd.Source, "type": cmd.Type})

	switch cmd.Type {
	case core.CmdText:
		logger.Debugf("command %q", cmd.Text)
		if err := a.controller.HandleCommand(cmd.Text); err != nil {
			logger.WithError(err).Warnf("command %q failed", cmd.Text)
		}
	case core.CmdRefresh:
		if err := a.controller.Refresh(); err != nil {
			logger.WithError(err).Warn("refresh failed")
		}
	default:
		logger.Warn("unknown command type")
		return
	}

	a.publishState()
}

// publishState pushes the controller snapshot to the shared state and the
// bus when it differs from the last one published.
func (a *Agent) publishState() {
	snap := a.controller.Snapshot()
	hash, err := structhash.Hash(snap, 1)
	if err != nil {
		a.logger.WithError(err).Warn("hashing state")
	}
	sum := []byte(hash)
	if err == nil && bytes.Equal(sum, a.lastHash) {
		return
	}
	a.lastHash = sum

	view := a.state.SetSnapshot(snap)
	a.eventBus.Publish(core.Event{Type: core.StateChangedEvent, Payload: view})
}
