package camguard

import "github.com/benbjohnson/clock"

// options configures a Guard.
type options struct {
	// clock timestamps open camera records.
	clock clock.Clock
}

// Option configures how we set up the guard.
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

// WithClock returns an Option which sets the clock used to timestamp open
// camera records. Tests use it to install a mock clock.
func WithClock(c clock.Clock) Option {
	return newFuncOption(func(o *options) {
		o.clock = c
	})
}
