package server

import "encoding/json"

// Command represents an incoming JSON command from a WebSocket client.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message represents an outgoing JSON message sent to WebSocket clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewMessage creates a new structured Message for broadcasting to clients.
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}

// Outgoing message types.
const (
	MsgDeviceState  = "device_state"
	MsgStatus       = "status"
	MsgFrame        = "frame"
	MsgThemeList    = "theme_list"
	MsgScheduleList = "schedule_list"
	MsgError        = "error"
)

// Incoming command types.
const (
	CmdCommand        = "command"
	CmdRefresh        = "refresh"
	CmdAddSchedule    = "addSchedule"
	CmdRemoveSchedule = "removeSchedule"
)

type textPayload struct {
	Text string `json:"text"`
}

type addSchedulePayload struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

type removeSchedulePayload struct {
	ID int `json:"id"`
}

type themeInfo struct {
	ID   uint8  `json:"id"`
	Name string `json:"name"`
}
