package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aretw0/commentmail/pkg/core"
)

var page1Ref = core.DocumentReference{Wiki: "xwiki", Space: "Main", Name: "Page1"}

type mapStore map[core.DocumentReference]core.Document

func (m mapStore) GetDocument(_ context.Context, ref core.DocumentReference) (core.Document, error) {
	doc, ok := m[ref]
	if !ok {
		return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, ref)
	}
	return doc, nil
}

func (m mapStore) GetDocumentByName(ctx context.Context, name string) (core.Document, error) {
	ref, err := core.ParseDocumentReference(name, core.DefaultWiki)
	if err != nil {
		return core.Document{}, err
	}
	return m.GetDocument(ctx, ref)
}

func testStore() mapStore {
	return mapStore{page1Ref: {Reference: page1Ref, Title: "Page1"}}
}

func objectEvent() core.ChangeEvent {
	return core.ChangeEvent{
		ID:         "ev-1",
		Kind:       core.EventAdded,
		Scope:      core.ScopeObject,
		Document:   core.Document{Reference: page1Ref},
		Reference:  core.ObjectReference{Document: page1Ref, Class: core.CommentClass, Number: 2},
		OccurredAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEncodeDecodeResolve(t *testing.T) {
	data, err := Encode(objectEvent())
	require.NoError(t, err)

	wire, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "xwiki:Main.Page1", wire.Document)
	assert.Equal(t, "xwiki:Main.Page1^XWiki.XWikiComments[2]", wire.Object)

	ev, err := wire.Resolve(context.Background(), testStore(), core.DefaultWiki)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, core.EventAdded, ev.Kind)
	assert.Equal(t, core.ScopeObject, ev.Scope)
	assert.Equal(t, 2, ev.Reference.Number)
	assert.Equal(t, "Page1", ev.Document.Title, "snapshot comes from the store")
	assert.True(t, objectEvent().OccurredAt.Equal(ev.OccurredAt))
}

func TestDocumentScopeOmitsObject(t *testing.T) {
	ev := objectEvent()
	ev.Scope = core.ScopeDocument
	wire := NewCommentEvent(ev)
	assert.Empty(t, wire.Object)

	resolved, err := wire.Resolve(context.Background(), testStore(), core.DefaultWiki)
	require.NoError(t, err)
	assert.True(t, resolved.Reference.IsZero())
}

func TestResolve_Invalid(t *testing.T) {
	ctx := context.Background()
	base := NewCommentEvent(objectEvent())

	tests := []struct {
		name   string
		mutate func(*CommentEvent)
		want   error
	}{
		{"unknown kind", func(c *CommentEvent) { c.Kind = "deleted" }, ErrInvalidEvent},
		{"unknown scope", func(c *CommentEvent) { c.Scope = "space" }, ErrInvalidEvent},
		{"bad document", func(c *CommentEvent) { c.Document = "" }, ErrInvalidEvent},
		{"bad object", func(c *CommentEvent) { c.Object = "xwiki:Main.Page1" }, ErrInvalidEvent},
		{"object on another document", func(c *CommentEvent) { c.Object = "xwiki:Main.Other^XWiki.XWikiComments[0]" }, ErrInvalidEvent},
		{"unknown document", func(c *CommentEvent) {
			c.Document = "Main.Gone"
			c.Object = "Main.Gone^XWiki.XWikiComments[0]"
		}, core.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			_, err := c.Resolve(ctx, testStore(), core.DefaultWiki)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := Decode([]byte{0xc1})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

type fakeReader struct {
	mu     sync.Mutex
	queue  []kafka.Message
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestSource_Events(t *testing.T) {
	good, err := Encode(objectEvent())
	require.NoError(t, err)
	unknown := NewCommentEvent(objectEvent())
	unknown.Document, unknown.Object = "Main.Gone", "Main.Gone^XWiki.XWikiComments[0]"
	unknownData, err := msgpack.Marshal(unknown)
	require.NoError(t, err)

	reader := &fakeReader{queue: []kafka.Message{
		{Value: []byte("garbage")},
		{Value: unknownData},
		{Value: good},
	}}

	src, err := NewSource(Config{Brokers: []string{"localhost:9092"}}, testStore())
	require.NoError(t, err)
	src.newReader = func() messageReader { return reader }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := src.Events(ctx)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "ev-1", ev.ID)
		assert.Equal(t, "Page1", ev.Document.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.True(t, reader.closed)
}

func TestNewSource_Validation(t *testing.T) {
	_, err := NewSource(Config{}, testStore())
	assert.Error(t, err)
	_, err = NewSource(Config{Brokers: []string{"b:9092"}}, nil)
	assert.Error(t, err)

	src, err := NewSource(Config{Brokers: []string{"b:9092"}}, testStore())
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, src.cfg.Topic)
	assert.Equal(t, "commentmail", src.cfg.GroupID)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{w: w}

	require.NoError(t, p.Publish(context.Background(), objectEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "xwiki:Main.Page1", string(w.msgs[0].Key))

	wire, err := Decode(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", wire.ID)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), objectEvent()))

	_, err = NewPublisher(Config{})
	assert.Error(t, err)
	pub, err := NewPublisher(Config{Brokers: []string{"b:9092"}})
	require.NoError(t, err)
	assert.NoError(t, pub.Close())
}
