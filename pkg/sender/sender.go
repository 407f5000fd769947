// Package sender drives the client side of the update protocol: it streams
// OPEN, the declared size, the image chunks, and DONE over a link, while
// watching the notification channel for progress and the final verdict.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rescp17/bleota/pkg/concurrency"
	"github.com/rescp17/bleota/pkg/firmware"
	"github.com/rescp17/bleota/pkg/ota"
)

// Link is the transport the sender writes through. tcp.Conn implements it;
// a BLE central wrapping the data and status characteristics would too.
type Link interface {
	WriteData(p []byte) error
	ReadStatus() ([]byte, error)
	Close() error
}

// Events are optional observer callbacks fed from the device's
// notification stream. Unset callbacks are skipped.
type Events struct {
	Progress func(received, total uint32, percentage uint8)
	Status   func(message string)
}

// Config tunes the sender.
type Config struct {
	// PacketSize is the per-write payload limit. <= 0 selects
	// ota.DefaultMaxPacketSize.
	PacketSize int
	// FinalizeTimeout bounds the wait for the device's verdict after DONE.
	FinalizeTimeout time.Duration
}

// DefaultFinalizeTimeout is used when Config.FinalizeTimeout is zero.
// Committing covers the device's flash verification pass, so it is generous.
const DefaultFinalizeTimeout = 30 * time.Second

// ErrAborted is returned when the device reports the update as aborted.
var ErrAborted = errors.New("update aborted by device")

// Sender streams firmware images to one device. A Sender runs at most one
// transfer at a time; concurrent Send calls fail fast with
// concurrency.ErrBusy.
type Sender struct {
	link   Link
	cfg    Config
	events Events
	guard  *concurrency.Guard
}

// New creates a sender over link.
func New(link Link, cfg Config, events Events) *Sender {
	if cfg.PacketSize <= 0 {
		cfg.PacketSize = ota.DefaultMaxPacketSize
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	return &Sender{
		link:   link,
		cfg:    cfg,
		events: events,
		guard:  concurrency.NewGuard(),
	}
}

// Send transfers img and blocks until the device reports the outcome.
// Cancelling ctx sends ABORT so the device discards the partial image.
func (s *Sender) Send(ctx context.Context, img *firmware.Image) error {
	return s.guard.Execute(func() error {
		return s.send(ctx, img)
	})
}

func (s *Sender) send(ctx context.Context, img *firmware.Image) error {
	slog.Info("Starting firmware transfer",
		"path", img.Path, "bytes", img.Size, "sha256", img.Digest, "type", img.MediaType)

	verdict := make(chan error, 1)
	go s.watchStatus(verdict)

	reader, err := img.Open()
	if err != nil {
		return err
	}
	defer reader.Close()

	chunker, err := NewChunker(reader, img.Size, s.cfg.PacketSize)
	if err != nil {
		return err
	}

	if err := s.link.WriteData([]byte(ota.TokenOpen)); err != nil {
		return fmt.Errorf("failed to open transfer: %w", err)
	}
	if err := s.link.WriteData(ota.EncodeSize(img.Size)); err != nil {
		return fmt.Errorf("failed to declare size: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.abort(err)
		}
		// A verdict before DONE means the device bailed out mid-stream.
		select {
		case err := <-verdict:
			return err
		default:
		}

		chunk, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.abort(err)
		}
		if err := s.link.WriteData(chunk); err != nil {
			return fmt.Errorf("failed to send chunk at %d: %w", chunker.Sent(), err)
		}
	}

	if err := s.link.WriteData([]byte(ota.TokenDone)); err != nil {
		return fmt.Errorf("failed to finalize transfer: %w", err)
	}

	select {
	case err := <-verdict:
		return err
	case <-ctx.Done():
		return s.abort(ctx.Err())
	case <-time.After(s.cfg.FinalizeTimeout):
		return errors.New("timed out waiting for device verdict")
	}
}

// abort tells the device to discard the partial image and returns cause.
func (s *Sender) abort(cause error) error {
	if err := s.link.WriteData([]byte(ota.TokenAbort)); err != nil {
		slog.Warn("Failed to send abort", "error", err)
	}
	return cause
}

// watchStatus consumes the notification stream, forwarding progress and
// status to the event callbacks and resolving the final verdict.
func (s *Sender) watchStatus(verdict chan<- error) {
	for {
		payload, err := s.link.ReadStatus()
		if err != nil {
			verdict <- fmt.Errorf("status channel closed: %w", err)
			return
		}

		if received, total, ok := ota.ParseProgress(payload); ok {
			if s.events.Progress != nil {
				s.events.Progress(received, total, ota.Percentage(received, total))
			}
			continue
		}

		message := string(payload)
		if s.events.Status != nil {
			s.events.Status(message)
		}

		switch message {
		case ota.MsgCompleted:
			verdict <- nil
			return
		case ota.MsgAborted:
			verdict <- ErrAborted
			return
		case ota.MsgNotEnoughSpace, ota.MsgSizeMismatch, ota.MsgWriteFailed, ota.MsgFinalizeFailed:
			verdict <- fmt.Errorf("device rejected update: %s", message)
			return
		}
	}
}
