// Package ble exposes an ota.Session as a BLE peripheral: one GATT service
// with a firmware data characteristic, an out-of-band command
// characteristic, and a notify-only status characteristic. Each
// characteristic write event is handed to the session as-is, so the token
// grammar rides directly on GATT write boundaries.
package ble

import (
	"errors"
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"

	"github.com/rescp17/bleota/pkg/ota"
)

// Default UUIDs, overridable through Config.
const (
	DefaultServiceUUID     = "12345678-1234-5678-9abc-def012345678"
	DefaultDataCharUUID    = "87654321-4321-8765-cba9-fedcba987654"
	DefaultCommandCharUUID = "11111111-2222-3333-4444-555555555555"
	DefaultStatusCharUUID  = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

// Config identifies the advertised service and its characteristics.
type Config struct {
	DeviceName      string
	ServiceUUID     string
	DataCharUUID    string
	CommandCharUUID string
	StatusCharUUID  string
}

// withDefaults fills empty fields with the stock UUIDs.
func (c Config) withDefaults() Config {
	if c.DeviceName == "" {
		c.DeviceName = "bleota"
	}
	if c.ServiceUUID == "" {
		c.ServiceUUID = DefaultServiceUUID
	}
	if c.DataCharUUID == "" {
		c.DataCharUUID = DefaultDataCharUUID
	}
	if c.CommandCharUUID == "" {
		c.CommandCharUUID = DefaultCommandCharUUID
	}
	if c.StatusCharUUID == "" {
		c.StatusCharUUID = DefaultStatusCharUUID
	}
	return c
}

// Peripheral terminates the BLE link for one ota.Session.
type Peripheral struct {
	cfg     Config
	session *ota.Session

	adapter     *bluetooth.Adapter
	adv         *bluetooth.Advertisement
	statusChar  bluetooth.Characteristic
	advertising bool
}

// New creates a peripheral for session. Start must be called before the
// service is visible.
func New(cfg Config, session *ota.Session) *Peripheral {
	return &Peripheral{
		cfg:     cfg.withDefaults(),
		session: session,
		adapter: bluetooth.DefaultAdapter,
	}
}

// Start enables the adapter, registers the GATT service, and begins
// advertising. The connect handler and the characteristic write events are
// closures over the owning session, so several peripherals can coexist in
// one process.
func (p *Peripheral) Start() error {
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	serviceUUID, err := bluetooth.ParseUUID(p.cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("invalid service UUID: %w", err)
	}
	dataUUID, err := bluetooth.ParseUUID(p.cfg.DataCharUUID)
	if err != nil {
		return fmt.Errorf("invalid data characteristic UUID: %w", err)
	}
	commandUUID, err := bluetooth.ParseUUID(p.cfg.CommandCharUUID)
	if err != nil {
		return fmt.Errorf("invalid command characteristic UUID: %w", err)
	}
	statusUUID, err := bluetooth.ParseUUID(p.cfg.StatusCharUUID)
	if err != nil {
		return fmt.Errorf("invalid status characteristic UUID: %w", err)
	}

	session := p.session
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		session.HandleConnection(connected)
		if !connected {
			// A lost central aborts any in-flight transfer inside the
			// session; all that is left is to become connectable again.
			if err := p.Restart(); err != nil {
				slog.Error("Failed to restart advertising", "error", err)
			}
		}
	})

	err = p.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID: dataUUID,
				Flags: bluetooth.CharacteristicReadPermission |
					bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					session.HandleWrite(value)
				},
			},
			{
				UUID: commandUUID,
				Flags: bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					session.HandleCommand(value)
				},
			},
			{
				Handle: &p.statusChar,
				UUID:   statusUUID,
				Flags: bluetooth.CharacteristicReadPermission |
					bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register GATT service: %w", err)
	}

	session.SetLink(p)

	p.adv = p.adapter.DefaultAdvertisement()
	if err := p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.cfg.DeviceName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	}); err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := p.adv.Start(); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	p.advertising = true

	if err := p.Notify([]byte(ota.MsgServiceReady)); err != nil {
		slog.Debug("No subscribers for ready notification", "error", err)
	}
	slog.Info("BLE OTA service advertising", "name", p.cfg.DeviceName, "service", p.cfg.ServiceUUID)
	return nil
}

// Notify sends a status or progress frame to subscribed centrals.
func (p *Peripheral) Notify(payload []byte) error {
	_, err := p.statusChar.Write(payload)
	return err
}

// Stop halts advertising. Connected centrals stay connected; call Restart
// to become discoverable again.
func (p *Peripheral) Stop() error {
	if p.adv == nil || !p.advertising {
		return nil
	}
	if err := p.adv.Stop(); err != nil {
		return fmt.Errorf("failed to stop advertising: %w", err)
	}
	p.advertising = false
	if err := p.Notify([]byte(ota.MsgServiceStopped)); err != nil {
		slog.Debug("No subscribers for stop notification", "error", err)
	}
	slog.Info("Stopped advertising")
	return nil
}

// Restart resumes advertising after Stop or after a central disconnects.
func (p *Peripheral) Restart() error {
	if p.adv == nil {
		return errors.New("peripheral not started")
	}
	if p.advertising {
		return nil
	}
	if err := p.adv.Start(); err != nil {
		return fmt.Errorf("failed to restart advertising: %w", err)
	}
	p.advertising = true
	if err := p.Notify([]byte(ota.MsgServiceRestart)); err != nil {
		slog.Debug("No subscribers for restart notification", "error", err)
	}
	slog.Info("Advertising restarted")
	return nil
}
