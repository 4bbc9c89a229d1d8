package virtual

import (
	"time"

	"github.com/benbjohnson/clock"
)

// options configures a Manager.
type options struct {
	// clock timestamps device creation.
	clock clock.Clock
	// rescanDebounce is the quiet period before a scheduled rescan runs.
	rescanDebounce time.Duration
}

// Option configures how we set up the manager.
// Cribbed from https://github.com/grpc/grpc-go/blob/aff571cc86e6e7e740130dbbb32a9741558db805/dialoptions.go#L41
type Option interface {
	apply(*options)
}

// funcOption wraps a function that modifies options into an
// implementation of the Option interface.
type funcOption struct {
	f func(*options)
}

func (fdo *funcOption) apply(do *options) {
	fdo.f(do)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithClock returns an Option which sets the clock used to timestamp device
// creation. Tests use it to install a mock clock.
func WithClock(c clock.Clock) Option {
	return newFuncOption(func(o *options) {
		o.clock = c
	})
}

// WithRescanDebounce returns an Option which sets how long topology changes
// must be quiet before a blocking rescan runs.
func WithRescanDebounce(window time.Duration) Option {
	return newFuncOption(func(o *options) {
		o.rescanDebounce = window
	})
}
