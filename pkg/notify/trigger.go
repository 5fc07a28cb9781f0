package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/aretw0/commentmail/pkg/core"
)

// Trigger names.
const (
	// TriggerBroad reacts to document-level "comment added/updated" events and
	// notifies the document author only.
	TriggerBroad = "broad"
	// TriggerNarrow reacts to object-level events on comment objects and also
	// notifies the author of the comment being answered.
	TriggerNarrow = "narrow"
)

// Results reported to the Recorder.
const (
	ResultSent        = "sent"
	ResultNoComment   = "no_comment"
	ResultNoRecipient = "no_recipient"
	ResultFailed      = "failed"
)

// Trigger reacts to one family of change events. OnEvent never panics and
// never reports errors: failures end in the log.
type Trigger interface {
	Name() string
	Accepts(ev core.ChangeEvent) bool
	OnEvent(ctx context.Context, ev core.ChangeEvent)
}

// Recorder observes the result of every triggered pipeline run.
type Recorder interface {
	Observe(trigger, result string)
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, string) {}

// pipeline is the shared body of both triggers: extract, resolve, compose, submit.
type pipeline struct {
	recipients *RecipientBuilder
	composer   *Composer
	sender     core.MailSender
	mailConfig core.MailConfiguration
	listener   core.DeliveryListener
	recorder   Recorder
	logger     *slog.Logger
}

type extractFunc func(ev core.ChangeEvent) (core.Comment, error)

func (p *pipeline) run(ctx context.Context, trigger string, ev core.ChangeEvent, extract extractFunc, followReplies bool) (string, error) {
	comment, err := extract(ev)
	if errors.Is(err, ErrCommentNotFound) {
		p.logger.Debug("no comment to notify about", "trigger", trigger, "event", ev.ID)
		return ResultNoComment, nil
	}
	if err != nil {
		return "", err
	}

	recipients, err := p.recipients.Build(ctx, ev.Document, comment, followReplies)
	if err != nil {
		return "", err
	}
	p.logger.Debug("recipients resolved", "trigger", trigger, "event", ev.ID, "recipients", recipients)
	if len(recipients) == 0 {
		return ResultNoRecipient, nil
	}

	msg, err := p.composer.Compose(ev.Document, ev.Kind, comment.Text, recipients)
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}

	session, err := core.NewSession(p.mailConfig)
	if err != nil {
		return "", fmt.Errorf("mail session: %w", err)
	}

	if err := p.sender.SendAsync(ctx, []core.Message{msg}, session, p.listener); err != nil {
		return "", fmt.Errorf("submit message %s: %w", msg.ID, err)
	}
	p.logger.Debug("message submitted", "trigger", trigger, "event", ev.ID, "message", msg.ID)
	return ResultSent, nil
}

// commentTrigger binds the pipeline to an event filter and an extraction strategy.
type commentTrigger struct {
	name          string
	pipeline      *pipeline
	accepts       func(ev core.ChangeEvent) bool
	extract       extractFunc
	followReplies bool
}

func (t *commentTrigger) Name() string { return t.name }

func (t *commentTrigger) Accepts(ev core.ChangeEvent) bool { return t.accepts(ev) }

func (t *commentTrigger) OnEvent(ctx context.Context, ev core.ChangeEvent) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("panic: %v", recovered)
			if t.pipeline.logger.Enabled(ctx, slog.LevelDebug) {
				t.pipeline.logger.Debug("trigger panic stack", "trigger", t.name, "stack", string(debug.Stack()))
			}
			t.fail(ctx, ev, err)
		}
	}()

	result, err := t.pipeline.run(ctx, t.name, ev, t.extract, t.followReplies)
	if err != nil {
		t.fail(ctx, ev, err)
		return
	}
	t.pipeline.recorder.Observe(t.name, result)
}

func (t *commentTrigger) fail(ctx context.Context, ev core.ChangeEvent, err error) {
	t.pipeline.logger.ErrorContext(ctx, "failure in comment listener",
		"trigger", t.name,
		"event", ev.ID,
		"document", ev.Document.Reference.String(),
		"error", err,
	)
	t.pipeline.recorder.Observe(t.name, ResultFailed)
}

func isCommentKind(kind core.EventKind) bool {
	return kind == core.EventAdded || kind == core.EventUpdated
}

func newBroadTrigger(p *pipeline) Trigger {
	return &commentTrigger{
		name:     TriggerBroad,
		pipeline: p,
		accepts: func(ev core.ChangeEvent) bool {
			return ev.Scope == core.ScopeDocument && isCommentKind(ev.Kind)
		},
		extract: func(ev core.ChangeEvent) (core.Comment, error) {
			return ExtractFirst(ev.Document)
		},
	}
}

func newNarrowTrigger(p *pipeline, matcher ReferenceMatcher) Trigger {
	return &commentTrigger{
		name:     TriggerNarrow,
		pipeline: p,
		accepts: func(ev core.ChangeEvent) bool {
			return ev.Scope == core.ScopeObject && isCommentKind(ev.Kind) && matcher.Match(ev.Reference)
		},
		extract: func(ev core.ChangeEvent) (core.Comment, error) {
			return ExtractByReference(ev.Document, ev.Reference)
		},
		followReplies: true,
	}
}
