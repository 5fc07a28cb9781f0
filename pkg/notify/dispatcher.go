// Package notify turns comment change events into email notifications.
//
// A Dispatcher owns a set of triggers. Each trigger filters events, extracts
// the changed comment, resolves recipients, composes a plain-text message and
// hands it to a core.MailSender without waiting for delivery.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aretw0/introspection"

	"github.com/aretw0/commentmail/pkg/core"
)

// Dispatcher routes change events to the registered triggers.
type Dispatcher struct {
	triggers []Trigger
	siteName string
	logger   *slog.Logger

	handled atomic.Uint64
	ignored atomic.Uint64
}

// New creates a Dispatcher reading documents from store and submitting mail through sender.
func New(store core.DocumentStore, sender core.MailSender, mailConfig core.MailConfiguration, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if sender == nil {
		return nil, errors.New("mail sender is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	listener := o.listener
	if listener == nil {
		listener = NewLogListener(logger)
	}
	recorder := o.recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	p := &pipeline{
		recipients: NewRecipientBuilder(NewResolver(store)),
		composer:   NewComposer(o.siteName),
		sender:     sender,
		mailConfig: mailConfig,
		listener:   listener,
		recorder:   recorder,
		logger:     logger,
	}

	d := &Dispatcher{siteName: o.siteName, logger: logger}
	for _, name := range o.triggers {
		switch name {
		case TriggerBroad:
			d.triggers = append(d.triggers, newBroadTrigger(p))
		case TriggerNarrow:
			d.triggers = append(d.triggers, newNarrowTrigger(p, o.matcher))
		default:
			return nil, fmt.Errorf("unknown trigger %q", name)
		}
	}
	if len(d.triggers) == 0 {
		return nil, errors.New("at least one trigger is required")
	}

	return d, nil
}

// Triggers returns the names of the registered triggers.
func (d *Dispatcher) Triggers() []string {
	names := make([]string, 0, len(d.triggers))
	for _, t := range d.triggers {
		names = append(names, t.Name())
	}
	return names
}

// Handle runs every trigger accepting ev, on the caller's goroutine.
func (d *Dispatcher) Handle(ctx context.Context, ev core.ChangeEvent) {
	accepted := false
	for _, t := range d.triggers {
		if !t.Accepts(ev) {
			continue
		}
		accepted = true
		t.OnEvent(ctx, ev)
	}

	if accepted {
		d.handled.Add(1)
	} else {
		d.ignored.Add(1)
		d.logger.Debug("event ignored", "event", ev.ID, "change", ev.String())
	}
}

// Run handles events until ctx is cancelled or the channel is closed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan core.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Handle(ctx, ev)
		}
	}
}

// DispatcherState exposes internal state for observability.
type DispatcherState struct {
	Triggers []string `json:"triggers"`
	SiteName string   `json:"site_name"`
	Handled  uint64   `json:"handled"`
	Ignored  uint64   `json:"ignored"`
}

// State implements introspection.Introspectable.
func (d *Dispatcher) State() any {
	return DispatcherState{
		Triggers: d.Triggers(),
		SiteName: d.siteName,
		Handled:  d.handled.Load(),
		Ignored:  d.ignored.Load(),
	}
}

// ComponentType implements introspection.Component.
func (d *Dispatcher) ComponentType() string {
	return "dispatcher"
}

var _ introspection.Introspectable = (*Dispatcher)(nil)
var _ introspection.Component = (*Dispatcher)(nil)

// LogListener records delivery outcomes in the log.
type LogListener struct {
	logger *slog.Logger
}

// NewLogListener creates a LogListener. A nil logger uses slog.Default().
func NewLogListener(logger *slog.Logger) *LogListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogListener{logger: logger}
}

func (l *LogListener) OnDelivery(ctx context.Context, outcome core.DeliveryOutcome) {
	if outcome.Status == core.DeliveryFailed {
		l.logger.WarnContext(ctx, "notification not delivered",
			"message", outcome.MessageID,
			"recipients", outcome.Recipients,
			"reason", outcome.Reason,
		)
		return
	}
	l.logger.InfoContext(ctx, "notification delivered",
		"message", outcome.MessageID,
		"recipients", outcome.Recipients,
	)
}
