package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/color"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "ledstrip", cfg.Strip.Name)
	assert.Equal(t, 60, cfg.Strip.Length)
	assert.Equal(t, 255, cfg.Strip.Brightness)
	assert.Equal(t, DriverMemory, cfg.Strip.Driver.Type)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "schedules.json", cfg.SchedulesFile)
	assert.Equal(t, color.White, cfg.StripColor())
	assert.Equal(t, 20*time.Millisecond, Duration(cfg.Strip.TickInterval))
	require.NoError(t, cfg.validate())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"strip": {
			"name": " porch ",
			"length": 144,
			"color": "#ff8000",
			"driver": {"type": "OPC", "opc": {"address": "10.0.0.5:7890", "channel": 2}}
		},
		"mqtt": {"enabled": true, "topic_prefix": "home"},
		"log": {"level": "DEBUG", "format": "json"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "porch", cfg.Strip.Name)
	assert.Equal(t, 144, cfg.Strip.Length)
	assert.Equal(t, color.RGB{R: 255, G: 128}, cfg.StripColor())
	assert.Equal(t, DriverOPC, cfg.Strip.Driver.Type)
	assert.Equal(t, uint8(2), cfg.Strip.Driver.OPC.Channel)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "home", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
strip:
  name: desk
  pin: 12
  length: 30
  tick_interval: 50ms
  driver:
    type: spi
    spi:
      port: /dev/spidev1.0
ble:
  device_names: ["ELK-BLEDOM02"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "desk", cfg.Strip.Name)
	assert.Equal(t, 12, cfg.Strip.Pin)
	assert.Equal(t, 30, cfg.Strip.Length)
	assert.Equal(t, DriverSPI, cfg.Strip.Driver.Type)
	assert.Equal(t, "/dev/spidev1.0", cfg.Strip.Driver.SPI.Port)
	assert.Equal(t, []string{"ELK-BLEDOM02"}, cfg.BLE.DeviceNames)
	assert.Equal(t, 50*time.Millisecond, Duration(cfg.Strip.TickInterval))
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"bad json":       `{"strip": `,
		"negative len":   `{"strip": {"length": -1}}`,
		"huge len":       `{"strip": {"length": 100000}}`,
		"brightness":     `{"strip": {"brightness": 300}}`,
		"color":          `{"strip": {"color": "#zzzzzz"}}`,
		"driver":         `{"strip": {"driver": {"type": "dmx"}}}`,
		"tick":           `{"strip": {"tick_interval": "soon"}}`,
		"spaced name":    `{"strip": {"name": "living room"}}`,
		"rate limit":     `{"ble": {"command_rate_limit": -5}}`,
		"log format":     `{"log": {"format": "xml"}}`,
		"negative speed": `{"strip": {"default_speed": -1}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.json", body))
			assert.Error(t, err)
		})
	}
}
