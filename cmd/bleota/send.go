package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	senderEvent "github.com/rescp17/bleota/internal/app_events/sender"
	"github.com/rescp17/bleota/pkg/discovery"
	"github.com/rescp17/bleota/pkg/firmware"
	"github.com/rescp17/bleota/pkg/host/tcp"
	"github.com/rescp17/bleota/pkg/ota"
	"github.com/rescp17/bleota/pkg/sender"
	"github.com/rescp17/bleota/pkg/ui"
)

const dialTimeout = 5 * time.Second

func sendCmd() *cobra.Command {
	var (
		addr       string
		name       string
		packetSize int
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "send <image>",
		Short: "Stream a firmware image to an update host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := firmware.Load(args[0])
			if err != nil {
				return err
			}

			target := addr
			label := addr
			if target == "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				info, err := discovery.Lookup(ctx, name)
				if err != nil {
					return err
				}
				target = info.HostPort()
				label = info.Name
				slog.Info("Discovered update host", "name", info.Name, "addr", target)
			}

			conn, err := tcp.Dial(target, dialTimeout)
			if err != nil {
				return err
			}
			defer conn.Close()

			cfg := sender.Config{PacketSize: packetSize}
			if plain {
				return sendPlain(cmd.Context(), conn, cfg, img)
			}
			return sendWithMonitor(cmd.Context(), conn, cfg, img, label)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Update host address (skips mDNS discovery)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Device name to discover via mDNS")
	cmd.Flags().IntVarP(&packetSize, "packet-size", "p", ota.DefaultMaxPacketSize, "Per-write payload size in bytes")
	cmd.Flags().BoolVar(&plain, "plain", false, "Log progress instead of rendering the TUI")
	return cmd
}

// sendPlain streams the image with slog progress output, for scripts and
// terminals without a TTY.
func sendPlain(ctx context.Context, conn *tcp.Conn, cfg sender.Config, img *firmware.Image) error {
	s := sender.New(conn, cfg, sender.Events{
		Progress: func(received, total uint32, percentage uint8) {
			slog.Info("Transfer progress", "received", received, "total", total, "percentage", percentage)
		},
		Status: func(message string) {
			slog.Info("Device status", "message", message)
		},
	})
	if err := s.Send(ctx, img); err != nil {
		return err
	}
	fmt.Println("Update completed successfully")
	return nil
}

// sendWithMonitor streams the image behind the bubbletea monitor. Quitting
// the monitor mid-transfer cancels the stream, which sends ABORT.
func sendWithMonitor(ctx context.Context, conn *tcp.Conn, cfg sender.Config, img *firmware.Image, label string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewSendModel(label, img.Size))

	s := sender.New(conn, cfg, sender.Events{
		Progress: func(received, total uint32, percentage uint8) {
			p.Send(senderEvent.ProgressUpdateMsg{Received: received, Total: total, Percentage: percentage})
		},
		Status: func(message string) {
			p.Send(senderEvent.StatusUpdateMsg{Message: message})
		},
	})

	sendErr := make(chan error, 1)
	go func() {
		err := s.Send(ctx, img)
		sendErr <- err
		p.Send(senderEvent.TransferFinishedMsg{Err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		cancel()
		<-sendErr
		return fmt.Errorf("monitor failed: %w", err)
	}

	if m, ok := finalModel.(ui.SendModel); ok && !m.Finished() {
		// The user quit early; cancel so the device discards the image.
		cancel()
	}

	if err := <-sendErr; err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("update cancelled")
		}
		return err
	}
	return nil
}
