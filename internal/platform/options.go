package platform

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/commentmail/pkg/core"
)

// options holds the collaborators that override what the configuration builds.
type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	sender     core.MailSender
	sources    []core.EventSource
}

// Option defines a functional option for configuring the application.
type Option func(*options)

func defaultOptions() *options {
	return &options{}
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry sets where metrics are registered and gathered from.
// Defaults to a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = reg
	}
}

// WithSender replaces the SMTP sender (dry runs, tests).
func WithSender(s core.MailSender) Option {
	return func(o *options) {
		o.sender = s
	}
}

// WithSources replaces the event sources built from configuration.
func WithSources(sources ...core.EventSource) Option {
	return func(o *options) {
		o.sources = sources
	}
}
