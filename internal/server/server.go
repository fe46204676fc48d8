package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/scheduler"
)

// Schedules is the part of the cron scheduler the server exposes.
type Schedules interface {
	List() []scheduler.Schedule
	Add(spec, command string) (int, error)
	Remove(id int) error
}

// Options configure a Server.
type Options struct {
	Port           string
	StaticFilesDir string
	AllowedOrigins []string
	Commands       core.CommandChannel
	State          func() core.DeviceView
	Schedules      Schedules
	Bus            *core.EventBus
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	opts       Options
	httpServer *http.Server
	upgrader   websocket.Upgrader
	mu         sync.Mutex
	cancel     context.CancelFunc
	logger     *log.Entry
}

// NewServer creates a new server instance. Run must be called before
// clients can connect.
func NewServer(opts Options) *Server {
	s := &Server{
		Hub:    NewHub(),
		opts:   opts,
		cancel: func() {},
		logger: log.WithField("component", "server"),
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.opts.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.opts.AllowedOrigins {
				if allowed == "*" || strings.EqualFold(origin, allowed) {
					return true
				}
			}
			s.logger.Warnf("websocket connection blocked: origin '%s' not allowed", origin)
			return false
		},
	}

	s.httpServer = &http.Server{Addr: ":" + opts.Port, Handler: s.Handler()}
	return s
}

// Handler serves the static UI on / and the websocket on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.opts.StaticFilesDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.StaticFilesDir)))
	}
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Run starts the hub and the event relay; both stop with ctx or Shutdown.
func (s *Server) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.Hub.Run(ctx)
	if s.opts.Bus != nil {
		go s.relay(ctx, s.opts.Bus)
	}
}

func (s *Server) ListenAndServe() error {
	s.logger.Infof("listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

// relay turns bus events into websocket broadcasts.
func (s *Server) relay(ctx context.Context, bus *core.EventBus) {
	types := []core.EventType{
		core.StateChangedEvent,
		core.DriverConnectionEvent,
		core.StatusReportedEvent,
		core.FrameRenderedEvent,
		core.SchedulesChangedEvent,
	}
	sub := bus.Subscribe(types...)
	defer bus.Unsubscribe(sub, types...)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			switch ev.Type {
			case core.StateChangedEvent, core.DriverConnectionEvent:
				s.Hub.Broadcast(NewMessage(MsgDeviceState, ev.Payload))
			case core.StatusReportedEvent:
				s.Hub.Broadcast(NewMessage(MsgStatus, ev.Payload))
			case core.FrameRenderedEvent:
				s.Hub.Broadcast(NewMessage(MsgFrame, ev.Payload))
			case core.SchedulesChangedEvent:
				if s.opts.Schedules != nil {
					s.Hub.Broadcast(NewMessage(MsgScheduleList, s.opts.Schedules.List()))
				}
			}
		}
	}
}

func themeList() []themeInfo {
	out := make([]themeInfo, 0, len(animation.Themes()))
	for _, t := range animation.Themes() {
		out = append(out, themeInfo{ID: uint8(t), Name: t.String()})
	}
	return out
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{conn: conn}

	if s.opts.State != nil {
		_ = c.send(NewMessage(MsgDeviceState, s.opts.State()))
	}
	_ = c.send(NewMessage(MsgThemeList, themeList()))
	if s.opts.Schedules != nil {
		_ = c.send(NewMessage(MsgScheduleList, s.opts.Schedules.List()))
	}

	if !s.Hub.add(c) {
		conn.Close()
		return
	}
	defer s.Hub.remove(c)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := s.handleMessage(raw); err != nil {
			s.logger.WithError(err).Debug("rejected websocket message")
			_ = c.send(NewMessage(MsgError, map[string]string{"error": err.Error()}))
		}
	}
}

// handleMessage applies one client command. Strip commands go through the
// agent's command channel; schedules are edited directly.
func (s *Server) handleMessage(raw []byte) error {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return errors.Wrap(err, "decode command")
	}

	switch cmd.Type {
	case CmdCommand:
		var p textPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errors.Wrap(err, "decode command payload")
		}
		if strings.TrimSpace(p.Text) == "" {
			return errors.New("empty command text")
		}
		return s.enqueue(core.Command{Type: core.CmdText, Text: p.Text, Source: core.SourceWeb})
	case CmdRefresh:
		return s.enqueue(core.Command{Type: core.CmdRefresh, Source: core.SourceWeb})
	case CmdAddSchedule:
		if s.opts.Schedules == nil {
			return errors.New("schedules unavailable")
		}
		var p addSchedulePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errors.Wrap(err, "decode schedule payload")
		}
		_, err := s.opts.Schedules.Add(p.Spec, p.Command)
		return err
	case CmdRemoveSchedule:
		if s.opts.Schedules == nil {
			return errors.New("schedules unavailable")
		}
		var p removeSchedulePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errors.Wrap(err, "decode schedule payload")
		}
		return s.opts.Schedules.Remove(p.ID)
	}
	return errors.Errorf("unknown command type %q", cmd.Type)
}

func (s *Server) enqueue(cmd core.Command) error {
	if s.opts.Commands == nil || !s.opts.Commands.TrySend(cmd) {
		return errors.New("command queue full")
	}
	return nil
}
