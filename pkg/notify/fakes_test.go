package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/commentmail/pkg/core"
)

// memStore implements core.DocumentStore in memory.
type memStore struct {
	docs map[core.DocumentReference]core.Document
	// failOn makes lookups of the given reference fail with a store error.
	failOn map[core.DocumentReference]error
}

func newMemStore(docs ...core.Document) *memStore {
	s := &memStore{
		docs:   make(map[core.DocumentReference]core.Document),
		failOn: make(map[core.DocumentReference]error),
	}
	for _, d := range docs {
		s.docs[d.Reference] = d
	}
	return s
}

func (s *memStore) GetDocument(ctx context.Context, ref core.DocumentReference) (core.Document, error) {
	if err, ok := s.failOn[ref]; ok {
		return core.Document{}, err
	}
	doc, ok := s.docs[ref]
	if !ok {
		return core.Document{}, core.ErrNotFound
	}
	return doc, nil
}

func (s *memStore) GetDocumentByName(ctx context.Context, name string) (core.Document, error) {
	ref, err := core.ParseDocumentReference(name, "xwiki")
	if err != nil {
		return core.Document{}, err
	}
	return s.GetDocument(ctx, ref)
}

// recordingSender implements core.MailSender and keeps every submission.
type recordingSender struct {
	mu        sync.Mutex
	sent      []core.Message
	sessions  []core.Session
	listeners []core.DeliveryListener
	err       error
}

func (s *recordingSender) SendAsync(ctx context.Context, messages []core.Message, session core.Session, listener core.DeliveryListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, messages...)
	s.sessions = append(s.sessions, session)
	s.listeners = append(s.listeners, listener)
	return nil
}

func (s *recordingSender) messages() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Message(nil), s.sent...)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) Observe(trigger, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[trigger+"/"+result]++
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// logBuffer is a concurrency-safe sink for a text slog handler.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) count(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), substr)
}

func newTestLogger(level slog.Level) (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})), buf
}

var errStoreDown = errors.New("store unavailable")

var testMailConfig = core.StaticMailConfiguration{
	Properties: map[string]string{core.PropHost: "smtp.example.test", core.PropPort: "2525"},
	User:       "notifier",
	Secret:     "secret",
}

func userRef(name string) core.DocumentReference {
	return core.DocumentReference{Wiki: "xwiki", Space: "XWiki", Name: name}
}

func userDoc(name, email string) core.Document {
	doc := core.Document{Reference: userRef(name)}
	if email != "-" {
		doc.Objects = []core.Object{{Class: core.UserClass, Fields: core.Metadata{"email": email}}}
	}
	return doc
}

func comment(number int, author, text string, replyTo any) core.Object {
	fields := core.Metadata{"comment": text, "author": author}
	if replyTo != nil {
		fields["replyto"] = replyTo
	}
	return core.Object{Class: core.CommentClass, Number: number, Fields: fields}
}

var page1Ref = core.DocumentReference{Wiki: "xwiki", Space: "Main", Name: "Page1"}

// page1 is authored by alice and carries the given comments.
func page1(objects ...core.Object) core.Document {
	return core.Document{
		Reference: page1Ref,
		Title:     "Page1",
		Author:    userRef("alice"),
		Objects:   objects,
	}
}

func standardUsers() []core.Document {
	return []core.Document{
		userDoc("alice", "alice@x.com"),
		userDoc("bob", "bob@x.com"),
		userDoc("carol", ""),
		userDoc("dave", "-"),
	}
}

func objectEvent(kind core.EventKind, doc core.Document, number int) core.ChangeEvent {
	return core.ChangeEvent{
		ID:        "evt-" + string(kind),
		Kind:      kind,
		Scope:     core.ScopeObject,
		Document:  doc,
		Reference: core.ObjectReference{Document: doc.Reference, Class: core.CommentClass, Number: number},
	}
}

func documentEvent(kind core.EventKind, doc core.Document) core.ChangeEvent {
	return core.ChangeEvent{
		ID:       "evt-doc-" + string(kind),
		Kind:     kind,
		Scope:    core.ScopeDocument,
		Document: doc,
	}
}
