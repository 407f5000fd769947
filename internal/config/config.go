// Package config loads the device-side configuration for the update host.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/rescp17/bleota/pkg/host/ble"
	"github.com/rescp17/bleota/pkg/ota"
	"github.com/rescp17/bleota/pkg/storage"
)

// Config is the top-level device configuration.
type Config struct {
	// DeviceName is the human-readable label advertised over the link.
	DeviceName string `toml:"device_name"`

	Link    LinkConfig    `toml:"link"`
	Storage StorageConfig `toml:"storage"`
	TCP     TCPConfig     `toml:"tcp"`
}

// LinkConfig identifies the GATT service and sets the payload limit.
type LinkConfig struct {
	ServiceUUID     string `toml:"service_uuid"`
	DataCharUUID    string `toml:"data_char_uuid"`
	CommandCharUUID string `toml:"command_char_uuid"`
	StatusCharUUID  string `toml:"status_char_uuid"`
	// MaxPacketSize caps a single inbound data write on the TCP dev
	// transport, standing in for the negotiated MTU on the BLE link.
	MaxPacketSize int `toml:"max_packet_size"`
}

// StorageConfig describes the image slot.
type StorageConfig struct {
	SlotPath string `toml:"slot_path"`
	// Capacity is the slot size in bytes, the ceiling for any declared
	// image size.
	Capacity uint32 `toml:"capacity"`
	// BufferSize is the staging buffer size in bytes.
	BufferSize int `toml:"buffer_size"`
}

// TCPConfig configures the development transport.
type TCPConfig struct {
	Addr string `toml:"addr"`
	// Announce publishes the host over mDNS when true.
	Announce bool `toml:"announce"`
	// IdleTimeoutSecs drops a silent client after this many seconds,
	// aborting any in-flight transfer. 0 disables the guard.
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`
}

// RestartGraceDelay is how long the host waits after a committed update
// before restarting, so the final status notification can flush.
const RestartGraceDelay = time.Second

// Default returns the stock configuration.
func Default() Config {
	return Config{
		DeviceName: "bleota",
		Link: LinkConfig{
			ServiceUUID:     ble.DefaultServiceUUID,
			DataCharUUID:    ble.DefaultDataCharUUID,
			CommandCharUUID: ble.DefaultCommandCharUUID,
			StatusCharUUID:  ble.DefaultStatusCharUUID,
			MaxPacketSize:   ota.DefaultMaxPacketSize,
		},
		Storage: StorageConfig{
			SlotPath:   "slot0.bin",
			Capacity:   4 * 1024 * 1024,
			BufferSize: storage.DefaultBufferSize,
		},
		TCP: TCPConfig{
			Addr:     ":9040",
			Announce: true,
		},
	}
}

// Load reads the TOML file at path, fills unset fields with defaults, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DeviceName == "" {
		c.DeviceName = def.DeviceName
	}
	if c.Link.ServiceUUID == "" {
		c.Link.ServiceUUID = def.Link.ServiceUUID
	}
	if c.Link.DataCharUUID == "" {
		c.Link.DataCharUUID = def.Link.DataCharUUID
	}
	if c.Link.CommandCharUUID == "" {
		c.Link.CommandCharUUID = def.Link.CommandCharUUID
	}
	if c.Link.StatusCharUUID == "" {
		c.Link.StatusCharUUID = def.Link.StatusCharUUID
	}
	if c.Link.MaxPacketSize == 0 {
		c.Link.MaxPacketSize = def.Link.MaxPacketSize
	}
	if c.Storage.SlotPath == "" {
		c.Storage.SlotPath = def.Storage.SlotPath
	}
	if c.Storage.Capacity == 0 {
		c.Storage.Capacity = def.Storage.Capacity
	}
	if c.Storage.BufferSize == 0 {
		c.Storage.BufferSize = def.Storage.BufferSize
	}
	if c.TCP.Addr == "" {
		c.TCP.Addr = def.TCP.Addr
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"link.service_uuid":      c.Link.ServiceUUID,
		"link.data_char_uuid":    c.Link.DataCharUUID,
		"link.command_char_uuid": c.Link.CommandCharUUID,
		"link.status_char_uuid":  c.Link.StatusCharUUID,
	} {
		if _, err := uuid.Parse(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if c.Link.MaxPacketSize <= 0 {
		return errors.New("link.max_packet_size must be positive")
	}
	if c.Storage.Capacity == 0 {
		return errors.New("storage.capacity must be positive")
	}
	if c.Storage.BufferSize <= 0 {
		return errors.New("storage.buffer_size must be positive")
	}
	if c.Storage.SlotPath == "" {
		return errors.New("storage.slot_path must be set")
	}
	if c.TCP.IdleTimeoutSecs < 0 {
		return errors.New("tcp.idle_timeout_secs cannot be negative")
	}
	return nil
}
