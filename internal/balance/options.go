package balance

import (
	"io"
	"log/slog"
)

type options struct {
	logger    *slog.Logger
	observers []Observer
}

// Option configures a Controller or a Run.
type Option func(*options)

// WithLogger sets the logger for progress events. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver adds an observer. It may be given more than once.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) observer() Observer {
	switch len(o.observers) {
	case 0:
		return NopObserver{}
	case 1:
		return o.observers[0]
	default:
		return MultiObserver(o.observers...)
	}
}
