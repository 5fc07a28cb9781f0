package core

import "context"

// DocumentStore gives read access to document snapshots.
// Adhering to this interface keeps the pipeline independent of the
// underlying storage (filesystem, database, remote wiki API).
type DocumentStore interface {
	// GetDocument returns the document designated by ref, or ErrNotFound.
	GetDocument(ctx context.Context, ref DocumentReference) (Document, error)

	// GetDocumentByName resolves a serialized reference ("XWiki.bob") and returns
	// the document, or ErrNotFound.
	GetDocumentByName(ctx context.Context, name string) (Document, error)
}

// EventSource emits comment change events until ctx is cancelled.
type EventSource interface {
	Events(ctx context.Context) (<-chan ChangeEvent, error)
}

// MailConfiguration supplies transport parameters. The pipeline treats the
// properties as opaque and hands them to the transport unmodified.
type MailConfiguration interface {
	AllProperties() map[string]string
	Username() string
	Password() string
}

// DeliveryListener records delivery outcomes outside the pipeline.
type DeliveryListener interface {
	OnDelivery(ctx context.Context, outcome DeliveryOutcome)
}

// MailSender submits messages for asynchronous delivery. SendAsync must not
// block on delivery; outcomes are reported to listener.
type MailSender interface {
	SendAsync(ctx context.Context, messages []Message, session Session, listener DeliveryListener) error
}

// DeliveryListenerFunc adapts a function to DeliveryListener.
type DeliveryListenerFunc func(ctx context.Context, outcome DeliveryOutcome)

func (f DeliveryListenerFunc) OnDelivery(ctx context.Context, outcome DeliveryOutcome) {
	f(ctx, outcome)
}

// MultiListener forwards every outcome to each listener in turn.
type MultiListener []DeliveryListener

func (m MultiListener) OnDelivery(ctx context.Context, outcome DeliveryOutcome) {
	for _, l := range m {
		if l != nil {
			l.OnDelivery(ctx, outcome)
		}
	}
}
