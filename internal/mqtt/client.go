package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/color"
	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/core"
)

// Client bridges one strip to an MQTT broker. Inbound payloads become
// command text on the agent's command channel; state flows back from the
// event bus.
type Client struct {
	client       mqtt.Client
	cfg          *config.Config
	commands     core.CommandChannel
	prefix       string
	defaultSpeed uint16
	version      string
	logger       *log.Entry
}

// NewClient returns nil when MQTT is disabled.
func NewClient(cfg *config.Config, commands core.CommandChannel, version string) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := Prefix(cfg.MQTT.TopicPrefix, cfg.Strip.Name)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep retrying at startup so a broker that boots later is picked up.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	// Commands must reach the strip in the order they were published.
	opts.SetOrderMatters(true)

	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:          cfg,
		commands:     commands,
		prefix:       prefix,
		defaultSpeed: uint16(cfg.Strip.DefaultSpeed),
		version:      version,
		logger:       log.WithField("component", "mqtt"),
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.logger.WithError(err).Warn("connection lost, retrying in background")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		c.logger.Info("attempting to reconnect")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Prefix is the topic root of one device.
func Prefix(topicPrefix, device string) string {
	return strings.TrimSuffix(topicPrefix, "/") + "/" + device
}

// Connect starts the connection loop and waits for the first handshake.
func (c *Client) Connect() error {
	if c.client == nil {
		return nil
	}
	c.logger.Infof("connecting to %s", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		c.logger.WithError(token.Error()).Error("initial connection failed")
		return token.Error()
	}
	return nil
}

// Disconnect publishes offline availability, then closes the socket.
func (c *Client) Disconnect() {
	if c.client == nil {
		return
	}
	if !c.client.IsConnected() {
		// Aborts a connect that is still retrying.
		c.client.Disconnect(0)
		return
	}
	c.logger.Info("disconnecting")

	token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
	if token.WaitTimeout(2 * time.Second) {
		if token.Error() != nil {
			c.logger.WithError(token.Error()).Warn("failed to publish offline status")
		}
	} else {
		c.logger.Warn("timed out publishing offline status")
	}

	c.client.Disconnect(250)
	c.logger.Info("disconnected")
}

// Publish sends payload to <prefix>/<subtopic> without blocking the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := c.prefix + "/" + subtopic
	var msg interface{}
	switch p := payload.(type) {
	case []byte, string:
		msg = p
	default:
		msg = fmt.Sprintf("%v", p)
	}

	token := c.client.Publish(topic, 0, retained, msg)
	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				c.logger.WithError(token.Error()).Warnf("publish to %s failed", topic)
			}
		} else {
			c.logger.Warnf("timeout publishing to %s", topic)
		}
	}()
}

// Send publishes a status line; Client is a strip reporter.
func (c *Client) Send(text string) error {
	c.Publish("status", text, false)
	return nil
}

// PublishState publishes the retained JSON state and the per-attribute
// topics Home Assistant reads.
func (c *Client) PublishState(v core.DeviceView) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WithError(err).Error("marshal state")
		return
	}
	c.Publish("state", data, true)
	for sub, payload := range StateTopics(v) {
		c.Publish(sub, payload, true)
	}
}

// StateTopics maps a view onto the Home Assistant state topics.
func StateTopics(v core.DeviceView) map[string]string {
	power := "OFF"
	if v.Power {
		power = "ON"
	}
	effect := "none"
	if t := animation.Theme(v.Theme); t != animation.ThemeStatic && t.Valid() {
		effect = t.String()
	}
	rgb, err := color.ParseHex(v.Color)
	if err != nil {
		rgb = color.Black
	}
	return map[string]string{
		"power/state":      power,
		"brightness/state": fmt.Sprintf("%d", v.Brightness),
		"color/state":      fmt.Sprintf("%d,%d,%d", rgb.R, rgb.G, rgb.B),
		"effect/state":     effect,
		"length/state":     fmt.Sprintf("%d", v.Length),
	}
}

// PublishConnection mirrors the pixel driver link.
func (c *Client) PublishConnection(connected bool) {
	state := "disconnected"
	if connected {
		state = "connected"
	}
	c.Publish("connection", state, true)
}

// Listen forwards bus events to the broker until ctx is done.
func (c *Client) Listen(ctx context.Context, bus *core.EventBus) {
	sub := bus.Subscribe(core.StateChangedEvent, core.DriverConnectionEvent)
	defer bus.Unsubscribe(sub, core.StateChangedEvent, core.DriverConnectionEvent)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			v, ok := ev.Payload.(core.DeviceView)
			if !ok {
				continue
			}
			switch ev.Type {
			case core.StateChangedEvent:
				c.PublishState(v)
			case core.DriverConnectionEvent:
				c.PublishConnection(v.DriverConnected)
			}
		}
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("connected to broker")

	topics := map[string]mqtt.MessageHandler{
		"set":            c.handleText,
		"power/set":      c.translated(TranslatePower),
		"color/set":      c.translated(TranslateColor),
		"brightness/set": c.translated(TranslateBrightness),
		"length/set":     c.translated(TranslateLength),
		"effect/set": c.translated(func(p string) (string, error) {
			return TranslateEffect(p, c.defaultSpeed)
		}),
		"refresh": c.handleRefresh,
	}

	for sub, handler := range topics {
		topic := c.prefix + "/" + sub
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			c.logger.WithError(token.Error()).Errorf("subscribe %s", topic)
		} else {
			c.logger.Debugf("subscribed to %s", topic)
		}
	}

	go func() {
		c.Publish("availability", "online", true)
		if c.cfg.MQTT.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
		c.enqueue(core.Command{Type: core.CmdRefresh, Source: core.SourceMQTT})
	}()
}

// PublishHADiscovery sends the Home Assistant light config.
func (c *Client) PublishHADiscovery() {
	d := BuildDiscovery(c.cfg.MQTT.HADiscoveryPrefix, c.prefix, c.cfg.MQTT.ClientID, c.cfg.Strip.Name, c.version)
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		c.logger.WithError(err).Error("marshal discovery")
		return
	}
	c.client.Publish(d.Topic, 0, true, payload)
	c.logger.Infof("HA discovery sent to %s", d.Topic)
}

func (c *Client) handleText(_ mqtt.Client, msg mqtt.Message) {
	c.enqueue(core.Command{Type: core.CmdText, Text: string(msg.Payload()), Source: core.SourceMQTT})
}

func (c *Client) handleRefresh(_ mqtt.Client, _ mqtt.Message) {
	c.enqueue(core.Command{Type: core.CmdRefresh, Source: core.SourceMQTT})
}

func (c *Client) translated(fn func(string) (string, error)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		text, err := fn(string(msg.Payload()))
		if err != nil {
			c.logger.WithError(err).Warnf("ignoring message on %s", msg.Topic())
			return
		}
		c.enqueue(core.Command{Type: core.CmdText, Text: text, Source: core.SourceMQTT})
	}
}

func (c *Client) enqueue(cmd core.Command) {
	if !c.commands.TrySend(cmd) {
		c.logger.Warnf("command queue full, dropping %s %q", cmd.Type, cmd.Text)
	}
}
