package services

import "time"

// Option configures the engine services
type Option func(*options)

type options struct {
	now      func() time.Time
	location *time.Location
	metrics  *Metrics
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone used to truncate times to calendar days
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithMetrics attaches Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
