package core

// CommandType defines the type of command being dispatched.
type CommandType string

const (
	// CmdText carries command text in the strip grammar, optionally
	// prefixed with the device name.
	CmdText CommandType = "text"
	// CmdRefresh asks for a fresh status report.
	CmdRefresh CommandType = "refresh"
)

// Command sources, used in logs.
const (
	SourceMQTT     = "mqtt"
	SourceWeb      = "web"
	SourceSchedule = "schedule"
	SourceInternal = "internal"
)

// Command is the envelope for incoming requests to change state.
type Command struct {
	Type   CommandType
	Text   string
	Source string
}

// CommandChannel is the single channel that the core Agent listens to for commands.
type CommandChannel chan Command

// TrySend queues cmd without blocking and reports whether it was accepted.
func (ch CommandChannel) TrySend(cmd Command) bool {
	select {
	case ch <- cmd:
		return true
	default:
		return false
	}
}
