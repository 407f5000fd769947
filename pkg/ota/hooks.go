package ota

// ProgressFunc is invoked after every staged data chunk with the running
// byte counts and the integer percentage. Implementations must return
// quickly; they run on the transport's event-delivery goroutine.
type ProgressFunc func(received, total uint32, percentage uint8)

// StatusFunc is invoked on every state change with the new state and its
// human-readable message.
type StatusFunc func(state UpdateState, message string)

// CommandFunc receives out-of-band command writes. Commands are routed to
// the hosting application verbatim and never interpreted by the session.
type CommandFunc func(command string)

// ConnectionFunc is invoked when the link-layer connection state changes.
type ConnectionFunc func(connected bool)

// RestartFunc is invoked once after a committed update so the host can
// reboot into the new image. Hosts should delay the actual restart briefly
// to let the final status notification flush over the link.
type RestartFunc func()

// Notifier carries outbound status and progress frames to the connected
// client, typically by writing a GATT notification.
type Notifier interface {
	Notify(payload []byte) error
}
