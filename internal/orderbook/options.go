package orderbook

import "time"

const (
	DefaultSpreadWindow     = 60 * time.Second
	DefaultDepthWindow      = 30 * time.Second
	DefaultDepthCompare     = 10 * time.Second
	DefaultMinSpreadSamples = 10
	mmCapitulationRatio     = 2.0
	mmLowConvictionRatio    = 1.2
)

type options struct {
	now              func() time.Time
	spreadWindow     time.Duration
	depthWindow      time.Duration
	depthCompare     time.Duration
	minSpreadSamples int
}

// Option configures the trackers.
type Option func(*options)

// WithClock overrides the clock used to evaluate the trailing windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSpreadWindow sets the spread tracker's trailing window.
func WithSpreadWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.spreadWindow = d
		}
	}
}

// WithDepthWindow sets the depth tracker's retention window.
func WithDepthWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.depthWindow = d
		}
	}
}

// WithDepthCompare sets the default comparison window used by IsCollapsed.
func WithDepthCompare(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.depthCompare = d
		}
	}
}

// WithMinSpreadSamples sets how many samples the spread statistics need.
func WithMinSpreadSamples(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minSpreadSamples = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:              time.Now,
		spreadWindow:     DefaultSpreadWindow,
		depthWindow:      DefaultDepthWindow,
		depthCompare:     DefaultDepthCompare,
		minSpreadSamples: DefaultMinSpreadSamples,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
