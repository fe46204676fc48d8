package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ledstrip-controller/internal/color"
	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/driver"
	"ledstrip-controller/internal/mqtt"
	"ledstrip-controller/internal/scheduler"
	"ledstrip-controller/internal/server"
	"ledstrip-controller/internal/strip"
)

// Agent is the single execution context of the strip: every command, tick
// and refresh is handled on the Run loop.
type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	wg     sync.WaitGroup

	started atomic.Bool
	done    chan struct{}

	state          *core.State
	eventBus       *core.EventBus
	commandChannel core.CommandChannel

	driver     driver.Driver
	controller *strip.Controller
	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client

	lastHash []byte
	logger   *log.Entry
}

// NewAgent wires every component from cfg. Nothing runs until Run.
func NewAgent(cfg *config.Config, version string) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		done:           make(chan struct{}),
		state:          core.NewState(),
		eventBus:       core.NewEventBus(),
		commandChannel: make(core.CommandChannel, 20),
		logger:         log.WithField("component", "agent"),
	}

	drv, err := driver.New(cfg, driver.Hooks{
		OnFrame:      a.onFrame,
		OnConnection: a.onConnection,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "create pixel driver")
	}
	a.driver = drv

	a.mqttClient = mqtt.NewClient(cfg, a.commandChannel, version)

	reporters := []strip.Reporter{a.eventBus}
	if a.mqttClient != nil {
		reporters = append(reporters, a.mqttClient)
	}
	a.controller = strip.NewController(strip.Options{
		Name:       cfg.Strip.Name,
		Pin:        cfg.Strip.Pin,
		Length:     cfg.Strip.Length,
		Brightness: uint8(cfg.Strip.Brightness),
		Color:      cfg.StripColor(),
	}, drv, reporters...)

	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.SchedulesFile, scheduler.Options{
		Validate: a.controller.Validate,
		OnChange: func() {
			a.eventBus.Publish(core.Event{Type: core.SchedulesChangedEvent})
		},
	})

	a.server = server.NewServer(server.Options{
		Port:           cfg.Server.Port,
		StaticFilesDir: cfg.Server.WebFilesDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Commands:       a.commandChannel,
		State:          a.state.Clone,
		Schedules:      a.scheduler,
		Bus:            a.eventBus,
	})

	return a, nil
}

// Run initializes the strip, starts the collaborators and serves the
// command loop until Shutdown.
func (a *Agent) Run() error {
	a.started.Store(true)
	defer close(a.done)

	if err := a.controller.Init(); err != nil {
		return errors.Wrap(err, "initialize strip")
	}
	a.publishState()

	if r, ok := a.driver.(driver.Runner); ok {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			r.Run(a.ctx)
		}()
	} else {
		a.onConnection(true, 0)
	}

	a.server.Run(a.ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.ListenAndServe(); err != nil {
			a.logger.WithError(err).Error("server error")
		}
	}()

	if a.mqttClient != nil {
		// Connect may retry until Disconnect, so it is not waited on.
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				a.logger.WithError(err).Error("MQTT setup error")
			}
		}()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.mqttClient.Listen(a.ctx, a.eventBus)
		}()
	}

	a.scheduler.Start()

	tick := time.NewTicker(config.Duration(a.config.Strip.TickInterval))
	defer tick.Stop()
	refresh := time.NewTicker(config.Duration(a.config.Strip.RefreshInterval))
	defer refresh.Stop()

	a.logger.Infof("running %q: %d pixels, %s driver", a.config.Strip.Name, a.config.Strip.Length, a.config.Strip.Driver.Type)
	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("orchestrator shutting down")
			return nil
		case cmd := <-a.commandChannel:
			a.handleCommand(cmd)
		case now := <-tick.C:
			if err := a.controller.Tick(now); err != nil {
				a.logger.WithError(err).Warn("animation frame failed")
			}
		case <-refresh.C:
			if err := a.controller.Refresh(); err != nil {
				a.logger.WithError(err).Warn("refresh failed")
			}
		}
	}
}

// Submit queues command text as if a host had sent it.
func (a *Agent) Submit(text string) bool {
	return a.commandChannel.TrySend(core.Command{Type: core.CmdText, Text: text, Source: core.SourceInternal})
}

// Controller exposes the strip for read-only inspection.
func (a *Agent) Controller() *strip.Controller {
	return a.controller
}

// State returns the last published device view.
func (a *Agent) State() core.DeviceView {
	return a.state.Clone()
}

// Events subscribes to the agent's event bus.
func (a *Agent) Events(types ...core.EventType) core.Subscriber {
	return a.eventBus.Subscribe(types...)
}

func (a *Agent) onFrame(frame []color.RGB) {
	hex := make([]string, len(frame))
	for i, px := range frame {
		hex[i] = px.Hex()
	}
	a.eventBus.Publish(core.Event{Type: core.FrameRenderedEvent, Payload: hex})
}

func (a *Agent) onConnection(connected bool, rssi int16) {
	view := a.state.SetConnection(connected, rssi)
	a.eventBus.Publish(core.Event{Type: core.DriverConnectionEvent, Payload: view})
}

// Shutdown stops every collaborator, waits for the loop and darkens the
// strip.
func (a *Agent) Shutdown() {
	a.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("server shutdown")
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}

	a.cancel()
	if a.started.Load() {
		<-a.done
	}
	a.wg.Wait()

	if err := a.controller.Close(); err != nil {
		a.logger.WithError(err).Warn("closing driver")
	}
}
