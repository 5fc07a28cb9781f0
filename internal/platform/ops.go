package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/commentmail/pkg/adapters/kafka"
	"github.com/aretw0/commentmail/pkg/core"
)

// ReplayEvents rebuilds the events a wiki raises when comment number of the
// named document is added or updated: the object event, then the document event.
func (a *App) ReplayEvents(ctx context.Context, docName string, number int, kind core.EventKind) ([]core.ChangeEvent, error) {
	if kind != core.EventAdded && kind != core.EventUpdated {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	doc, err := a.Store.GetDocumentByName(ctx, docName)
	if err != nil {
		return nil, err
	}
	obj, ok := doc.ObjectAt(core.CommentClass, number)
	if !ok {
		return nil, fmt.Errorf("%s has no comment %d", doc.Reference, number)
	}

	now := time.Now()
	return []core.ChangeEvent{
		{
			ID:         uuid.NewString(),
			Kind:       kind,
			Scope:      core.ScopeObject,
			Document:   doc,
			Reference:  doc.ObjectReference(obj),
			OccurredAt: now,
		},
		{
			ID:         uuid.NewString(),
			Kind:       kind,
			Scope:      core.ScopeDocument,
			Document:   doc,
			OccurredAt: now,
		},
	}, nil
}

// AddComment appends a comment to the named document and saves it, as the wiki
// would. With the fs source running, the change is picked up like any other
// edit. replyTo may be nil for a top-level comment.
func (a *App) AddComment(ctx context.Context, docName, author, text string, replyTo *int) (core.ObjectReference, error) {
	doc, err := a.Store.GetDocumentByName(ctx, docName)
	if err != nil {
		return core.ObjectReference{}, err
	}
	if replyTo != nil {
		if _, ok := doc.ObjectAt(core.CommentClass, *replyTo); !ok {
			return core.ObjectReference{}, fmt.Errorf("%s has no comment %d to reply to", doc.Reference, *replyTo)
		}
	}

	number := 0
	if existing := doc.ObjectsOf(core.CommentClass); len(existing) > 0 {
		number = existing[len(existing)-1].Number + 1
	}
	fields := core.Metadata{"comment": text, "author": author}
	if replyTo != nil {
		fields["replyto"] = *replyTo
	}
	obj := core.Object{Class: core.CommentClass, Number: number, Fields: fields}
	doc.Objects = append(doc.Objects, obj)

	if err := a.Store.Save(ctx, doc); err != nil {
		return core.ObjectReference{}, fmt.Errorf("save %s: %w", doc.Reference, err)
	}
	return doc.ObjectReference(obj), nil
}

// Dispatch hands events to the dispatcher synchronously.
func (a *App) Dispatch(ctx context.Context, events []core.ChangeEvent) {
	for _, ev := range events {
		a.Dispatcher.Handle(ctx, ev)
	}
}

// Publish sends events to the configured Kafka topic instead of handling them.
func (a *App) Publish(ctx context.Context, events []core.ChangeEvent) error {
	k := a.Config.Sources.Kafka
	pub, err := kafka.NewPublisher(kafka.Config{Brokers: k.Brokers, Topic: k.Topic})
	if err != nil {
		return err
	}
	defer pub.Close()
	for _, ev := range events {
		if err := pub.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publish %s: %w", ev.ID, err)
		}
	}
	return nil
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Name string
	Err  error
}

// Check verifies that the configured collaborators are reachable.
func (a *App) Check(ctx context.Context) []CheckResult {
	results := []CheckResult{
		{Name: "store", Err: a.checkStore()},
		{Name: "mail", Err: a.Config.CheckMail()},
	}
	if a.DeliveryLog != nil {
		_, err := a.DeliveryLog.Recent(ctx, 1)
		results = append(results, CheckResult{Name: "delivery log", Err: err})
	}
	if a.Config.Sources.Kafka.Enabled {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		results = append(results, CheckResult{Name: "kafka", Err: kafka.Ping(pingCtx, a.Config.Sources.Kafka.Brokers)})
	}
	return results
}

func (a *App) checkStore() error {
	return a.Store.Probe()
}

// PreviewSender is a core.MailSender that keeps messages instead of sending them.
type PreviewSender struct {
	mu       sync.Mutex
	messages []core.Message
}

var _ core.MailSender = (*PreviewSender)(nil)

// SendAsync records messages. No outcome is reported.
func (p *PreviewSender) SendAsync(_ context.Context, messages []core.Message, _ core.Session, _ core.DeliveryListener) error {
	if len(messages) == 0 {
		return errors.New("nothing to preview")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, messages...)
	return nil
}

// Messages returns the recorded messages.
func (p *PreviewSender) Messages() []core.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Message, len(p.messages))
	copy(out, p.messages)
	return out
}
