// Package capture reads physical key transitions from the operating system.
package capture

import (
	"context"
	"errors"

	"layerlens/internal/engine"
)

// ErrUnsupported is returned on platforms without a capture backend.
var ErrUnsupported = errors.New("capture: not supported on this platform")

// Source pushes key transitions to emit until ctx is done or the backend
// fails. emit may be called from several goroutines.
type Source interface {
	Run(ctx context.Context, emit func(engine.KeyEvent)) error
}

// Options selects input devices.
type Options struct {
	// Devices are case-insensitive substrings of device names. When empty
	// every device that can type letters is used.
	Devices []string
}

// New returns the capture source for this platform.
func New(opts Options) Source {
	return newPlatformSource(opts)
}

// Replay is a Source that emits a fixed list of events and then waits for
// cancellation.
type Replay []engine.KeyEvent

func (r Replay) Run(ctx context.Context, emit func(engine.KeyEvent)) error {
	for _, ev := range r {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(ev)
	}
	<-ctx.Done()
	return ctx.Err()
}
