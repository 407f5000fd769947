package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/bleota/internal/config"
	"github.com/rescp17/bleota/pkg/host/ble"
	"github.com/rescp17/bleota/pkg/host/tcp"
	"github.com/rescp17/bleota/pkg/ota"
	"github.com/rescp17/bleota/pkg/storage"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		transport  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device-side update host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return runServe(cmd.Context(), cfg, transport)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&transport, "transport", "t", "tcp", "Link transport: tcp or ble")
	return cmd
}

func runServe(parent context.Context, cfg config.Config, transport string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer := storage.NewSlotWriter(cfg.Storage.SlotPath, cfg.Storage.Capacity, cfg.Storage.BufferSize)
	session := ota.NewSession(writer)

	session.OnStatus(func(state ota.UpdateState, message string) {
		slog.Info("Update status changed", "state", state.String(), "message", message)
	})
	session.OnCommand(func(command string) {
		slog.Info("Received out-of-band command", "command", command)
	})

	// A committed image would reboot a real device; the host process just
	// exits after the grace delay so a supervisor can restart it on the
	// new image.
	restartCtx, restart := context.WithCancel(ctx)
	defer restart()
	session.SetRestart(func() {
		slog.Info("Restart scheduled", "delay", config.RestartGraceDelay.String())
		time.AfterFunc(config.RestartGraceDelay, restart)
	})

	switch transport {
	case "tcp":
		host := tcp.New(tcp.Config{
			Addr:          cfg.TCP.Addr,
			Instance:      announceInstance(cfg),
			IdleTimeout:   time.Duration(cfg.TCP.IdleTimeoutSecs) * time.Second,
			MaxPacketSize: cfg.Link.MaxPacketSize,
		}, session)
		err := host.ListenAndServe(restartCtx)
		if errors.Is(err, context.Canceled) {
			slog.Info("Update host stopped")
			return nil
		}
		return err

	case "ble":
		peripheral := ble.New(ble.Config{
			DeviceName:      cfg.DeviceName,
			ServiceUUID:     cfg.Link.ServiceUUID,
			DataCharUUID:    cfg.Link.DataCharUUID,
			CommandCharUUID: cfg.Link.CommandCharUUID,
			StatusCharUUID:  cfg.Link.StatusCharUUID,
		}, session)
		if err := peripheral.Start(); err != nil {
			return err
		}
		<-restartCtx.Done()
		if err := peripheral.Stop(); err != nil {
			slog.Warn("Failed to stop advertising", "error", err)
		}
		slog.Info("Update host stopped")
		return nil

	default:
		return fmt.Errorf("unknown transport %q (want tcp or ble)", transport)
	}
}

func announceInstance(cfg config.Config) string {
	if !cfg.TCP.Announce {
		return ""
	}
	return cfg.DeviceName
}
