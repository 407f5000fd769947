package concurrency

import (
	"errors"
	"sync"
)

// ErrBusy is returned when a guarded operation is already running.
var ErrBusy = errors.New("operation already in progress")

// Guard serializes access to an operation that must not run twice at once,
// such as streaming an update to a device that accepts one transfer at a
// time. Unlike a mutex it fails fast instead of queueing.
type Guard struct {
	mu     sync.Mutex
	isBusy bool
}

func NewGuard() *Guard {
	return &Guard{}
}

// Execute runs task unless another task is already running, in which case
// it returns ErrBusy without blocking.
func (g *Guard) Execute(task func() error) error {
	g.mu.Lock()
	if g.isBusy {
		g.mu.Unlock()
		return ErrBusy
	}
	g.isBusy = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.isBusy = false
		g.mu.Unlock()
	}()
	return task()
}
