package commentmail

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/commentmail/internal/config"
	"github.com/aretw0/commentmail/internal/platform"
	"github.com/aretw0/commentmail/pkg/core"
)

// Version exposes the version of the library.
// See version.go for the implementation using go:embed.

// --- Types ---

// Config is the service configuration.
type Config = config.Config

// App is a wired notification service.
type App = platform.App

// PreviewSender keeps messages instead of mailing them.
type PreviewSender = platform.PreviewSender

// --- Configuration ---

// Option defines a functional option for configuring the service.
type Option = platform.Option

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRegistry sets the Prometheus registry metrics are registered in.
func WithRegistry(reg *prometheus.Registry) Option {
	return platform.WithRegistry(reg)
}

// WithSender replaces the SMTP sender.
func WithSender(s core.MailSender) Option {
	return platform.WithSender(s)
}

// WithSources replaces the event sources built from configuration.
func WithSources(sources ...core.EventSource) Option {
	return platform.WithSources(sources...)
}

// --- Constructors ---

// LoadConfig reads a YAML file (optional) overlaid with COMMENTMAIL_* variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// New wires the service described by cfg.
func New(cfg *Config, opts ...Option) (*App, error) {
	return platform.New(cfg, opts...)
}

// Open loads the configuration at path and wires the service.
func Open(path string, opts ...Option) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return platform.New(cfg, opts...)
}

// FindConfig looks upwards from startDir for commentmail.yaml.
func FindConfig(startDir string) (string, error) {
	return platform.FindConfig(startDir)
}
