package ota

import (
	"log/slog"

	"github.com/rescp17/bleota/pkg/storage"
)

// Session is the firmware update protocol handler. One Session lives for
// the whole lifetime of its host and processes any number of sequential
// update attempts; its counters are reset, not recreated, when a transfer
// opens or terminates.
//
// Session is not safe for concurrent use. The host must deliver HandleWrite,
// HandleCommand, HandleConnection, and Abort calls one at a time.
type Session struct {
	writer storage.ImageWriter
	link   Notifier

	progress   ProgressFunc
	status     StatusFunc
	command    CommandFunc
	connection ConnectionFunc
	restart    RestartFunc

	state      UpdateState
	message    string
	receiving  bool
	writerOpen bool
	imageSize  uint32
	received   uint32
	connected  bool
}

// NewSession creates a session that stages incoming images through writer.
func NewSession(writer storage.ImageWriter) *Session {
	return &Session{
		writer: writer,
		state:  StateIdle,
	}
}

// SetLink attaches the outbound notification channel. A nil link is
// tolerated; status and progress frames are then dropped.
func (s *Session) SetLink(link Notifier) { s.link = link }

// SetRestart registers the host's restart handler, invoked after a
// successful commit.
func (s *Session) SetRestart(fn RestartFunc) { s.restart = fn }

// OnProgress registers the progress observer hook.
func (s *Session) OnProgress(fn ProgressFunc) { s.progress = fn }

// OnStatus registers the status observer hook.
func (s *Session) OnStatus(fn StatusFunc) { s.status = fn }

// OnCommand registers the out-of-band command observer hook.
func (s *Session) OnCommand(fn CommandFunc) { s.command = fn }

// OnConnection registers the connection observer hook.
func (s *Session) OnConnection(fn ConnectionFunc) { s.connection = fn }

// State returns the state of the most recent update attempt.
func (s *Session) State() UpdateState { return s.state }

// InProgress returns true while a transfer is being received.
func (s *Session) InProgress() bool { return s.receiving }

// IsConnected returns true while a client is connected.
func (s *Session) IsConnected() bool { return s.connected }

// Received returns the number of image bytes accepted so far.
func (s *Session) Received() uint32 { return s.received }

// Total returns the declared image size, or 0 if not yet received.
func (s *Session) Total() uint32 { return s.imageSize }

// Percentage returns the integer completion percentage of the current
// transfer, 0 when no size has been declared.
func (s *Session) Percentage() uint8 { return Percentage(s.received, s.imageSize) }

// HandleWrite processes one transport-level write on the data channel.
// The checks below run in a fixed priority order; because tokens carry no
// discriminator byte, the order is what separates a 4-byte DONE from a
// 4-byte size token and must not be rearranged.
func (s *Session) HandleWrite(buf []byte) {
	if len(buf) == 0 {
		return
	}

	if !s.receiving {
		// Stray writes outside a transfer are deliberately ignored.
		if len(buf) == len(TokenOpen) && string(buf) == TokenOpen {
			s.begin()
		}
		return
	}

	// The size token is expected before anything else, so a 4-byte write
	// while the size is unset is always the size, never DONE.
	if s.imageSize == 0 && len(buf) == SizeTokenLen {
		size, _ := ParseSize(buf)
		s.declareSize(size)
		return
	}

	if len(buf) == len(TokenDone) && string(buf) == TokenDone {
		s.finalize()
		return
	}

	if len(buf) == len(TokenAbort) && string(buf) == TokenAbort {
		s.Abort()
		return
	}

	if s.received < s.imageSize {
		s.stageChunk(buf)
	}
}

// HandleCommand routes an out-of-band command write to the command hook.
func (s *Session) HandleCommand(buf []byte) {
	if len(buf) == 0 {
		return
	}
	if s.command != nil {
		s.command(string(buf))
	}
}

// HandleConnection records a link-layer connection change. Losing the
// client mid-transfer aborts the update so the slot is never left
// half-written.
func (s *Session) HandleConnection(connected bool) {
	s.connected = connected
	if connected {
		slog.Info("Client connected")
		s.notify([]byte(MsgConnected))
	} else {
		slog.Info("Client disconnected")
		if s.receiving {
			s.Abort()
		}
	}
	if s.connection != nil {
		s.connection(connected)
	}
}

// Abort cancels the update in progress, discarding any staged bytes.
// Aborting when no transfer is open is a no-op.
func (s *Session) Abort() {
	if !s.receiving {
		return
	}
	if s.writerOpen {
		s.writer.Discard()
		s.writerOpen = false
	}
	s.receiving = false
	s.imageSize = 0
	s.received = 0
	s.setStatus(StateAborted, MsgAborted)
}

// BroadcastStatus re-sends the most recent status message over the
// notification channel, for clients that subscribed after the fact.
func (s *Session) BroadcastStatus() {
	message := s.message
	if message == "" {
		message = MsgServiceReady
	}
	s.notify([]byte(message))
}

// BroadcastProgress re-sends the current progress frame.
func (s *Session) BroadcastProgress() {
	s.notify(EncodeProgress(s.received, s.imageSize))
}

func (s *Session) begin() {
	slog.Info("Update started")
	s.receiving = true
	s.imageSize = 0
	s.received = 0
	s.setStatus(StateReceiving, MsgUpdateStarted)
}

func (s *Session) declareSize(size uint32) {
	if err := s.writer.Open(size); err != nil {
		slog.Error("Failed to open image slot", "size", size, "error", err)
		s.receiving = false
		s.setStatus(StateError, MsgNotEnoughSpace)
		return
	}
	s.writerOpen = true
	s.imageSize = size
	slog.Info("Update size declared", "bytes", size)
	s.setStatus(StateReceiving, MsgReceiving)
}

func (s *Session) stageChunk(buf []byte) {
	n, err := s.writer.Append(buf)
	if err != nil || n == 0 {
		slog.Error("Failed to stage image chunk", "offset", s.received, "error", err)
		s.writer.Discard()
		s.writerOpen = false
		s.receiving = false
		s.setStatus(StateError, MsgWriteFailed)
		return
	}
	s.received += uint32(n)
	s.reportProgress()
}

func (s *Session) finalize() {
	s.receiving = false
	if s.received != s.imageSize {
		slog.Error("Size mismatch at finalize", "received", s.received, "declared", s.imageSize)
		s.writer.Discard()
		s.writerOpen = false
		s.setStatus(StateError, MsgSizeMismatch)
		return
	}

	// Commit terminates the writer session on both success and failure.
	s.writerOpen = false
	if err := s.writer.Commit(); err != nil {
		slog.Error("Failed to finalize update", "error", err)
		s.setStatus(StateError, MsgFinalizeFailed)
		return
	}

	slog.Info("Update completed", "bytes", s.received)
	s.setStatus(StateCompleted, MsgCompleted)
	if s.restart != nil {
		s.restart()
	}
}

func (s *Session) reportProgress() {
	pct := Percentage(s.received, s.imageSize)
	if s.progress != nil {
		s.progress(s.received, s.imageSize, pct)
	}
	s.notify(EncodeProgress(s.received, s.imageSize))
}

func (s *Session) setStatus(state UpdateState, message string) {
	s.state = state
	s.message = message
	if s.status != nil {
		s.status(state, message)
	}
	s.notify([]byte(message))
}

func (s *Session) notify(payload []byte) {
	if s.link == nil {
		return
	}
	if err := s.link.Notify(payload); err != nil {
		slog.Warn("Failed to send notification", "error", err)
	}
}
