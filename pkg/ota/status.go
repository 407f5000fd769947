package ota

// UpdateState represents the current state of a firmware update session.
type UpdateState int

const (
	// StateIdle indicates no update has been attempted yet.
	StateIdle UpdateState = iota
	// StateReceiving indicates a transfer is in progress.
	StateReceiving
	// StateCompleted indicates the last update finished and was committed.
	StateCompleted
	// StateError indicates the last update failed.
	StateError
	// StateAborted indicates the last update was cancelled.
	StateAborted
)

// String returns a human-readable representation of the update state.
func (s UpdateState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the state is the outcome of a finished update
// attempt. A session in a terminal state is ready to accept a new OPEN.
func (s UpdateState) IsTerminal() bool {
	return s == StateCompleted || s == StateError || s == StateAborted
}

// Status messages emitted over the notification channel. Clients match on
// these strings, so they are part of the wire protocol.
const (
	MsgServiceReady   = "OTA service ready"
	MsgServiceStopped = "Service stopped"
	MsgServiceRestart = "Service restarted"
	MsgConnected      = "Connected"
	MsgUpdateStarted  = "Update started"
	MsgReceiving      = "Receiving firmware"
	MsgNotEnoughSpace = "Not enough space"
	MsgSizeMismatch   = "Size mismatch"
	MsgWriteFailed    = "Write failed"
	MsgCompleted      = "Update completed successfully"
	MsgFinalizeFailed = "Update finalization failed"
	MsgAborted        = "Update aborted"
)
