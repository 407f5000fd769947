package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/bleota/pkg/host/ble"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bleota.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
device_name = "bench-device"

[storage]
slot_path = "/var/lib/bleota/slot0.bin"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bench-device", cfg.DeviceName)
	assert.Equal(t, "/var/lib/bleota/slot0.bin", cfg.Storage.SlotPath)

	def := Default()
	assert.Equal(t, def.Link.ServiceUUID, cfg.Link.ServiceUUID)
	assert.Equal(t, def.Link.MaxPacketSize, cfg.Link.MaxPacketSize)
	assert.Equal(t, def.Storage.Capacity, cfg.Storage.Capacity)
	assert.Equal(t, def.TCP.Addr, cfg.TCP.Addr)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
device_name = "garage-door"

[link]
service_uuid = "0d792f6a-8e6a-47b7-9a4e-6d2a3f6e2b41"
max_packet_size = 244

[storage]
slot_path = "slot1.bin"
capacity = 2097152
buffer_size = 8192

[tcp]
addr = ":9999"
announce = false
idle_timeout_secs = 60
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "garage-door", cfg.DeviceName)
	assert.Equal(t, "0d792f6a-8e6a-47b7-9a4e-6d2a3f6e2b41", cfg.Link.ServiceUUID)
	assert.Equal(t, ble.DefaultDataCharUUID, cfg.Link.DataCharUUID, "unset UUIDs fall back")
	assert.Equal(t, 244, cfg.Link.MaxPacketSize)
	assert.Equal(t, uint32(2*1024*1024), cfg.Storage.Capacity)
	assert.Equal(t, 8192, cfg.Storage.BufferSize)
	assert.Equal(t, ":9999", cfg.TCP.Addr)
	assert.False(t, cfg.TCP.Announce)
	assert.Equal(t, 60, cfg.TCP.IdleTimeoutSecs)
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"Malformed TOML", `device_name = `},
		{"Bad UUID", "[link]\nservice_uuid = \"not-a-uuid\"\n"},
		{"Negative packet size", "[link]\nmax_packet_size = -1\n"},
		{"Negative idle timeout", "[tcp]\nidle_timeout_secs = -5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
