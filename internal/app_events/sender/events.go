// Package sender defines the messages the transfer pipeline sends to the
// monitor UI.
package sender

// --- UI Messages (from the transfer pipeline to the TUI) ---

// StatusUpdateMsg carries a status line from the device's notification
// channel.
type StatusUpdateMsg struct {
	Message string
}

// ProgressUpdateMsg mirrors one device progress frame.
type ProgressUpdateMsg struct {
	Received   uint32
	Total      uint32
	Percentage uint8
}

// TransferFinishedMsg reports the final verdict. Err is nil on a committed
// update.
type TransferFinishedMsg struct {
	Err error
}
