package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ledstrip-controller/internal/color"
)

// Driver backends understood by driver.New.
const (
	DriverMemory = "memory"
	DriverOPC    = "opc"
	DriverSPI    = "spi"
	DriverBLEDOM = "bledom"
	DriverWeb    = "web"
)

// MaxLength mirrors the largest strip the command grammar accepts.
const MaxLength = 4096

// OPCConfig - Open Pixel Control server (Fadecandy, gl_server)
type OPCConfig struct {
	Address string `json:"address" yaml:"address"`
	Channel uint8  `json:"channel" yaml:"channel"`
}

// SPIConfig - WS2812 over a Linux spidev port. The clock is fixed at the
// 2.5MHz the NRZ encoder needs.
type SPIConfig struct {
	Port string `json:"port" yaml:"port"`
}

// DriverConfig selects the pixel driver backend
type DriverConfig struct {
	Type string    `json:"type" yaml:"type"`
	OPC  OPCConfig `json:"opc" yaml:"opc"`
	SPI  SPIConfig `json:"spi" yaml:"spi"`
}

// StripConfig - the strip itself
type StripConfig struct {
	Name            string       `json:"name" yaml:"name"`
	Pin             int          `json:"pin" yaml:"pin"`
	Length          int          `json:"length" yaml:"length"`
	Brightness      int          `json:"brightness" yaml:"brightness"`
	Color           string       `json:"color" yaml:"color"`
	DefaultSpeed    int          `json:"default_speed" yaml:"default_speed"`
	TickInterval    string       `json:"tick_interval" yaml:"tick_interval"`
	RefreshInterval string       `json:"refresh_interval" yaml:"refresh_interval"`
	Driver          DriverConfig `json:"driver" yaml:"driver"`
}

// ServerConfig - HTTP server
type ServerConfig struct {
	Port           string   `json:"port" yaml:"port"`
	WebFilesDir    string   `json:"web_files_dir" yaml:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// BLEConfig - Bluetooth Low Energy, used by the bledom driver
type BLEConfig struct {
	DeviceNames       []string `json:"device_names" yaml:"device_names"`
	ScanTimeout       string   `json:"scan_timeout" yaml:"scan_timeout"`
	ConnectTimeout    string   `json:"connect_timeout" yaml:"connect_timeout"`
	HeartbeatInterval string   `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	RetryDelay        string   `json:"retry_delay" yaml:"retry_delay"`
	RateLimit         float64  `json:"command_rate_limit" yaml:"command_rate_limit"`
	RateBurst         int      `json:"command_rate_burst" yaml:"command_rate_burst"`
}

// MQTTConfig - MQTT and Home Assistant Discovery
type MQTTConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	Broker             string `json:"broker" yaml:"broker"` // tcp://IP:PORT
	Username           string `json:"username" yaml:"username"`
	Password           string `json:"password" yaml:"password"`
	ClientID           string `json:"client_id" yaml:"client_id"`
	TopicPrefix        string `json:"topic_prefix" yaml:"topic_prefix"`
	HADiscoveryEnabled bool   `json:"ha_discovery_enabled" yaml:"ha_discovery_enabled"`
	HADiscoveryPrefix  string `json:"ha_discovery_prefix" yaml:"ha_discovery_prefix"`
}

// LogConfig - logrus level and formatter
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text | json
}

// Config - top level
type Config struct {
	Strip  StripConfig  `json:"strip" yaml:"strip"`
	Server ServerConfig `json:"server" yaml:"server"`
	BLE    BLEConfig    `json:"ble" yaml:"ble"`
	MQTT   MQTTConfig   `json:"mqtt" yaml:"mqtt"`
	Log    LogConfig    `json:"log" yaml:"log"`

	SchedulesFile string `json:"schedules_file" yaml:"schedules_file"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads a JSON or YAML file (by extension), then sanitizes, fills
// defaults and validates it. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file '%s'", path)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to decode yaml")
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to decode json")
		}
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	c.Strip.Name = strings.TrimSpace(c.Strip.Name)
	c.Strip.Color = strings.TrimSpace(c.Strip.Color)
	c.Strip.Driver.Type = strings.ToLower(strings.TrimSpace(c.Strip.Driver.Type))
	c.Strip.Driver.OPC.Address = strings.TrimSpace(c.Strip.Driver.OPC.Address)
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	// BLE names keep their padding: "ELK-BLEDOM   " is advertised verbatim.
}

func (c *Config) setDefaults() {
	// Strip Defaults
	if c.Strip.Name == "" {
		c.Strip.Name = "ledstrip"
	}
	if c.Strip.Pin == 0 {
		c.Strip.Pin = 18
	}
	if c.Strip.Length == 0 {
		c.Strip.Length = 60
	}
	if c.Strip.Brightness == 0 {
		c.Strip.Brightness = 255
	}
	if c.Strip.Color == "" {
		c.Strip.Color = "#FFFFFF"
	}
	if c.Strip.DefaultSpeed == 0 {
		c.Strip.DefaultSpeed = 1000
	}
	if c.Strip.TickInterval == "" {
		c.Strip.TickInterval = "20ms"
	}
	if c.Strip.RefreshInterval == "" {
		c.Strip.RefreshInterval = "5m"
	}
	if c.Strip.Driver.Type == "" {
		c.Strip.Driver.Type = DriverMemory
	}
	if c.Strip.Driver.OPC.Address == "" {
		c.Strip.Driver.OPC.Address = "localhost:7890"
	}
	if c.Strip.Driver.SPI.Port == "" {
		c.Strip.Driver.SPI.Port = "/dev/spidev0.0"
	}

	// Server Defaults
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// BLE Defaults
	if len(c.BLE.DeviceNames) == 0 {
		c.BLE.DeviceNames = []string{"ELK-BLEDOM   ", "BLEDOM"}
	}
	if c.BLE.ScanTimeout == "" {
		c.BLE.ScanTimeout = "30s"
	}
	if c.BLE.ConnectTimeout == "" {
		c.BLE.ConnectTimeout = "7s"
	}
	if c.BLE.HeartbeatInterval == "" {
		c.BLE.HeartbeatInterval = "60s"
	}
	if c.BLE.RetryDelay == "" {
		c.BLE.RetryDelay = "5s"
	}
	if c.BLE.RateLimit == 0 {
		c.BLE.RateLimit = 25.0
	}
	if c.BLE.RateBurst <= 0 {
		c.BLE.RateBurst = 25
	}

	// File Defaults
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}

	// MQTT Defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ledstrip-controller"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ledstrip"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}

	// Log Defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Strip.Length < 0 || c.Strip.Length > MaxLength {
		return errors.Errorf("config error: 'strip.length' must be 1..%d", MaxLength)
	}
	if c.Strip.Brightness < 0 || c.Strip.Brightness > 255 {
		return errors.New("config error: 'strip.brightness' must be 0..255")
	}
	if c.Strip.DefaultSpeed < 0 || c.Strip.DefaultSpeed > 65535 {
		return errors.New("config error: 'strip.default_speed' must be 0..65535")
	}
	if strings.ContainsRune(c.Strip.Name, ' ') {
		return errors.New("config error: 'strip.name' must be a single word")
	}
	if _, err := color.ParseHex(c.Strip.Color); err != nil {
		return errors.Wrap(err, "config error: 'strip.color'")
	}
	switch c.Strip.Driver.Type {
	case DriverMemory, DriverOPC, DriverSPI, DriverBLEDOM, DriverWeb:
	default:
		return errors.Errorf("config error: unknown driver type '%s'", c.Strip.Driver.Type)
	}
	for name, d := range map[string]string{
		"strip.tick_interval":    c.Strip.TickInterval,
		"strip.refresh_interval": c.Strip.RefreshInterval,
		"ble.scan_timeout":       c.BLE.ScanTimeout,
		"ble.connect_timeout":    c.BLE.ConnectTimeout,
		"ble.heartbeat_interval": c.BLE.HeartbeatInterval,
		"ble.retry_delay":        c.BLE.RetryDelay,
	} {
		v, err := time.ParseDuration(d)
		if err != nil {
			return errors.Wrapf(err, "config error: '%s'", name)
		}
		if v <= 0 {
			return errors.Errorf("config error: '%s' must be positive", name)
		}
	}
	if c.BLE.RateLimit <= 0 {
		return errors.New("config error: 'command_rate_limit' must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("config error: unknown log format '%s'", c.Log.Format)
	}
	return nil
}

// Duration parses a value that validate already accepted.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// StripColor returns the configured startup color.
func (c *Config) StripColor() color.RGB {
	rgb, err := color.ParseHex(c.Strip.Color)
	if err != nil {
		return color.White
	}
	return rgb
}
