// Package platform is the composition root: it turns a config.Config into a
// running notification service.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/commentmail/internal/config"
	"github.com/aretw0/commentmail/internal/observability"
	"github.com/aretw0/commentmail/pkg/adapters/fs"
	"github.com/aretw0/commentmail/pkg/adapters/kafka"
	"github.com/aretw0/commentmail/pkg/adapters/lifecycle"
	"github.com/aretw0/commentmail/pkg/adapters/smtp"
	"github.com/aretw0/commentmail/pkg/adapters/sqlite"
	"github.com/aretw0/commentmail/pkg/core"
	"github.com/aretw0/commentmail/pkg/notify"
)

// App holds the wired components of the service.
type App struct {
	Config      *config.Config
	Store       *fs.Store
	Dispatcher  *notify.Dispatcher
	Metrics     *observability.Metrics
	DeliveryLog *sqlite.DeliveryLog

	sources  []core.EventSource
	sender   core.MailSender
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// waiter is implemented by senders that deliver in the background.
type waiter interface {
	Wait()
}

// New builds the application from cfg.
//
//	app, err := platform.New(cfg, platform.WithLogger(logger))
//	defer app.Close()
//	err = app.Run(ctx)
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if o.registerer == nil {
		reg := prometheus.NewRegistry()
		o.registerer, o.gatherer = reg, reg
	}

	store, err := fs.NewStore(fs.Config{
		Root:        cfg.Store.Root,
		DefaultWiki: cfg.Site.DefaultWiki,
		ReadOnly:    cfg.Store.ReadOnly,
		Logger:      logger.With("component", "store"),
		Pattern:     cfg.Sources.FS.Pattern,
		Debounce:    cfg.Sources.FS.Debounce,
	})
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}

	app := &App{
		Config:   cfg,
		Store:    store,
		Metrics:  observability.NewMetrics(o.registerer),
		gatherer: o.gatherer,
		logger:   logger,
	}

	listeners := core.MultiListener{notify.NewLogListener(logger), app.Metrics}
	if cfg.Delivery.LogPath != "" {
		dl, err := sqlite.Open(cfg.Delivery.LogPath, logger.With("component", "delivery-log"))
		if err != nil {
			return nil, fmt.Errorf("delivery log: %w", err)
		}
		app.DeliveryLog = dl
		listeners = append(listeners, dl)
	}

	sender := o.sender
	if sender == nil {
		sender = smtp.NewSender(
			smtp.WithTimeout(cfg.Mail.Timeout),
			smtp.WithLogger(logger.With("component", "smtp")),
		)
	}

	dispatcherOpts := []notify.Option{
		notify.WithLogger(logger.With("component", "dispatcher")),
		notify.WithSiteName(cfg.Site.Name),
		notify.WithDeliveryListener(listeners),
		notify.WithRecorder(app.Metrics),
		notify.WithTriggers(cfg.Triggers...),
	}
	if cfg.Match != "" {
		m, err := notify.NewGlobMatcher(cfg.Match)
		if err != nil {
			app.Close()
			return nil, err
		}
		dispatcherOpts = append(dispatcherOpts, notify.WithMatcher(m))
	}

	app.sender = sender
	app.Dispatcher, err = notify.New(store, sender, cfg.Mail, dispatcherOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.sources = o.sources
	if app.sources == nil {
		if app.sources, err = app.buildSources(); err != nil {
			app.Close()
			return nil, err
		}
	}
	return app, nil
}

func (a *App) buildSources() ([]core.EventSource, error) {
	cfg := a.Config
	var sources []core.EventSource
	if !cfg.Sources.FS.Disabled {
		sources = append(sources, a.Store)
	}
	if cfg.Sources.Kafka.Enabled {
		src, err := kafka.NewSource(kafka.Config{
			Brokers:     cfg.Sources.Kafka.Brokers,
			Topic:       cfg.Sources.Kafka.Topic,
			GroupID:     cfg.Sources.Kafka.GroupID,
			DefaultWiki: cfg.Site.DefaultWiki,
			Logger:      a.logger.With("component", "kafka"),
		}, a.Store)
		if err != nil {
			return nil, fmt.Errorf("kafka source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Run consumes every event source until ctx is cancelled, serving metrics
// when an address is configured.
func (a *App) Run(ctx context.Context) error {
	events, err := lifecycle.Merge(ctx, a.sources...)
	if err != nil {
		return err
	}

	var srv *http.Server
	if addr := a.Config.Metrics.Addr; addr != "" {
		srv = observability.NewServer(addr, a.gatherer)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		a.logger.Info("serving metrics", "addr", addr)
	}

	a.logger.Info("listening for comment events",
		"sources", len(a.sources),
		"triggers", a.Config.Triggers,
		"root", a.Store.Root(),
	)
	err = a.Dispatcher.Run(ctx, events)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.logger.Warn("metrics server shutdown", "error", serr)
		}
	}
	return err
}

// Wait blocks until the mail submitted so far has been delivered or has failed.
func (a *App) Wait() {
	if w, ok := a.sender.(waiter); ok {
		w.Wait()
	}
}

// Close waits for pending deliveries, then releases resources opened by New.
func (a *App) Close() error {
	a.Wait()
	if a.DeliveryLog != nil {
		return a.DeliveryLog.Close()
	}
	return nil
}
