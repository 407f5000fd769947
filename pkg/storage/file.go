package storage

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// DefaultBufferSize is the staging buffer size used when none is configured.
	DefaultBufferSize = 4096

	stagingSuffix = ".staging"
)

// SlotWriter is a file-backed ImageWriter that emulates a fixed-size flash
// slot. Incoming bytes are staged next to the slot file and only replace it
// on Commit, so a torn transfer never corrupts the active image.
type SlotWriter struct {
	slotPath   string
	capacity   uint32
	bufferSize int

	file    *os.File
	buf     *bufio.Writer
	open    bool
	written uint32
}

// NewSlotWriter creates a writer for the image slot at slotPath with the
// given capacity in bytes. bufferSize <= 0 selects DefaultBufferSize.
func NewSlotWriter(slotPath string, capacity uint32, bufferSize int) *SlotWriter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &SlotWriter{
		slotPath:   slotPath,
		capacity:   capacity,
		bufferSize: bufferSize,
	}
}

// SlotPath returns the path of the active image slot.
func (w *SlotWriter) SlotPath() string { return w.slotPath }

// Capacity returns the slot capacity in bytes.
func (w *SlotWriter) Capacity() uint32 { return w.capacity }

func (w *SlotWriter) stagingPath() string { return w.slotPath + stagingSuffix }

// Open starts a new staging session for an image of the declared size.
func (w *SlotWriter) Open(size uint32) error {
	if w.open {
		return ErrAlreadyOpen
	}
	if size == 0 {
		return ErrZeroSize
	}
	if size > w.capacity {
		return &CapacityError{Requested: size, Capacity: w.capacity}
	}

	if err := os.MkdirAll(filepath.Dir(w.slotPath), 0o755); err != nil {
		return fmt.Errorf("failed to create slot directory: %w", err)
	}

	file, err := os.OpenFile(w.stagingPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	w.file = file
	w.buf = bufio.NewWriterSize(file, w.bufferSize)
	w.open = true
	w.written = 0

	slog.Debug("Opened image slot for staging", "path", w.slotPath, "size", size)
	return nil
}

// Append stages the next run of image bytes. Writes past the slot capacity
// fail rather than truncate.
func (w *SlotWriter) Append(p []byte) (int, error) {
	if !w.open {
		return 0, ErrNotOpen
	}
	if w.written+uint32(len(p)) < w.written || w.written+uint32(len(p)) > w.capacity {
		return 0, &CapacityError{Requested: w.written + uint32(len(p)), Capacity: w.capacity}
	}

	n, err := w.buf.Write(p)
	w.written += uint32(n)
	if err != nil {
		return n, fmt.Errorf("failed to stage image bytes: %w", err)
	}
	return n, nil
}

// Written returns the number of bytes staged so far.
func (w *SlotWriter) Written() uint32 { return w.written }

// Commit flushes the staged image and atomically replaces the slot file.
// The session is closed whether or not Commit succeeds; on failure the
// partial staging file is removed and the previous image stays active.
func (w *SlotWriter) Commit() error {
	if !w.open {
		return ErrNotOpen
	}
	defer w.reset()

	if err := w.buf.Flush(); err != nil {
		w.cleanupStaging()
		return fmt.Errorf("failed to flush staged image: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.cleanupStaging()
		return fmt.Errorf("failed to sync staged image: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.removeStaging()
		return fmt.Errorf("failed to close staged image: %w", err)
	}
	if err := os.Rename(w.stagingPath(), w.slotPath); err != nil {
		w.removeStaging()
		return fmt.Errorf("failed to publish staged image: %w", err)
	}

	slog.Info("Image committed to slot", "path", w.slotPath, "bytes", w.written)
	return nil
}

// Discard drops the staged bytes and closes the session. Safe to call when
// no session is open.
func (w *SlotWriter) Discard() {
	if !w.open {
		return
	}
	w.cleanupStaging()
	w.reset()
	slog.Debug("Discarded staged image", "path", w.slotPath)
}

func (w *SlotWriter) cleanupStaging() {
	if err := w.file.Close(); err != nil {
		slog.Warn("Failed to close staging file", "error", err)
	}
	w.removeStaging()
}

func (w *SlotWriter) removeStaging() {
	if err := os.Remove(w.stagingPath()); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove staging file", "error", err)
	}
}

func (w *SlotWriter) reset() {
	w.file = nil
	w.buf = nil
	w.open = false
}
