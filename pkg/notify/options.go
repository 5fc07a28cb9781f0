package notify

import (
	"log/slog"

	"github.com/aretw0/commentmail/pkg/core"
)

// options holds the optional collaborators of a Dispatcher.
type options struct {
	logger   *slog.Logger
	siteName string
	listener core.DeliveryListener
	recorder Recorder
	matcher  ReferenceMatcher
	triggers []string
}

// Option defines a functional option for configuring a Dispatcher.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		siteName: DefaultSiteName,
		matcher:  NewClassMatcher(core.CommentClass),
		triggers: []string{TriggerNarrow},
	}
}

// WithLogger sets the logger. A nil logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSiteName sets the name shown between brackets in subjects.
func WithSiteName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.siteName = name
		}
	}
}

// WithDeliveryListener sets the collaborator that records delivery outcomes.
// Defaults to a listener that logs them.
func WithDeliveryListener(l core.DeliveryListener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// WithRecorder sets the observer of pipeline results (metrics).
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithMatcher replaces the reference matcher used by the narrow trigger.
func WithMatcher(m ReferenceMatcher) Option {
	return func(o *options) {
		if m != nil {
			o.matcher = m
		}
	}
}

// WithTriggers selects which triggers are registered, by name.
// Defaults to the narrow trigger only: a host emitting both document and object
// events would otherwise mail twice for the same comment.
func WithTriggers(names ...string) Option {
	return func(o *options) {
		o.triggers = names
	}
}
