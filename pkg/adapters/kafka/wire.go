// Package kafka carries comment change events over Kafka topics.
//
// Events travel as msgpack records that name the document and object; the
// consumer resolves the document snapshot from a local store.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aretw0/commentmail/pkg/core"
)

// ErrInvalidEvent is returned for records that cannot become a ChangeEvent.
var ErrInvalidEvent = errors.New("invalid comment event")

// CommentEvent is the wire form of core.ChangeEvent.
type CommentEvent struct {
	ID         string    `msgpack:"id"`
	Kind       string    `msgpack:"kind"`
	Scope      string    `msgpack:"scope"`
	Document   string    `msgpack:"document"`
	Object     string    `msgpack:"object,omitempty"`
	OccurredAt time.Time `msgpack:"occurred_at"`
}

// NewCommentEvent converts ev to its wire form. The snapshot itself is not sent.
func NewCommentEvent(ev core.ChangeEvent) CommentEvent {
	out := CommentEvent{
		ID:         ev.ID,
		Kind:       string(ev.Kind),
		Scope:      string(ev.Scope),
		Document:   ev.Document.Reference.String(),
		OccurredAt: ev.OccurredAt,
	}
	if ev.Scope == core.ScopeObject {
		out.Object = ev.Reference.String()
	}
	return out
}

// Encode serializes ev with msgpack.
func Encode(ev core.ChangeEvent) ([]byte, error) {
	return msgpack.Marshal(NewCommentEvent(ev))
}

// Decode parses a msgpack record.
func Decode(data []byte) (CommentEvent, error) {
	var ev CommentEvent
	if err := msgpack.Unmarshal(data, &ev); err != nil {
		return CommentEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}

// Resolve validates the record and loads the document snapshot from store.
func (c CommentEvent) Resolve(ctx context.Context, store core.DocumentStore, defaultWiki string) (core.ChangeEvent, error) {
	kind := core.EventKind(c.Kind)
	if kind != core.EventAdded && kind != core.EventUpdated {
		return core.ChangeEvent{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, c.Kind)
	}

	docRef, err := core.ParseDocumentReference(c.Document, defaultWiki)
	if err != nil {
		return core.ChangeEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	ev := core.ChangeEvent{
		ID:         c.ID,
		Kind:       kind,
		Scope:      core.EventScope(c.Scope),
		OccurredAt: c.OccurredAt,
	}
	switch ev.Scope {
	case core.ScopeDocument:
	case core.ScopeObject:
		ref, err := core.ParseObjectReference(c.Object, defaultWiki)
		if err != nil {
			return core.ChangeEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if ref.Document != docRef {
			return core.ChangeEvent{}, fmt.Errorf("%w: object %s is not on %s", ErrInvalidEvent, ref, docRef)
		}
		ev.Reference = ref
	default:
		return core.ChangeEvent{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidEvent, c.Scope)
	}

	doc, err := store.GetDocument(ctx, docRef)
	if err != nil {
		return core.ChangeEvent{}, fmt.Errorf("load %s: %w", docRef, err)
	}
	ev.Document = doc
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	return ev, nil
}
