package exchange

import "time"

const (
	DefaultPollTimeout   = 25 * time.Second
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Second
)

type options struct {
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

type Option func(*options)

// WithIdleTimeout sets how long a subscriber without pending polls
// survives the sweep.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = d
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
