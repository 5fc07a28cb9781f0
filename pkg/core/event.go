package core

import "time"

// EventKind tells whether a comment was added or updated.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
)

// EventScope tells which granularity the event source reported.
type EventScope string

const (
	// ScopeDocument events say "a comment was added to / updated on this document".
	ScopeDocument EventScope = "document"
	// ScopeObject events name the exact object that changed.
	ScopeObject EventScope = "object"
)

// ChangeEvent is raised by an event source when a document's comments change.
type ChangeEvent struct {
	ID       string
	Kind     EventKind
	Scope    EventScope
	Document Document
	// Reference is set for ScopeObject events only.
	Reference  ObjectReference
	OccurredAt time.Time
}

// String implements fmt.Stringer (and lifecycle.Event).
func (e ChangeEvent) String() string {
	target := e.Document.Reference.String()
	if e.Scope == ScopeObject {
		target = e.Reference.String()
	}
	return string(e.Scope) + "/" + string(e.Kind) + " " + target
}
