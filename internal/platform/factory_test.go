package platform

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/commentmail/internal/config"
	"github.com/aretw0/commentmail/pkg/adapters/fs"
	"github.com/aretw0/commentmail/pkg/core"
	"github.com/aretw0/commentmail/pkg/notify"
)

const pageFile = `---
title: Page1
author: XWiki.alice
objects:
  - class: XWiki.XWikiComments
    fields: {comment: Nice page, author: XWiki.bob}
  - class: XWiki.XWikiComments
    fields: {comment: Agreed, author: XWiki.carol, replyto: 0}
---
Welcome.
`

func userFile(email string) string {
	return "---\nobjects:\n  - class: XWiki.XWikiUsers\n    fields: {email: " + email + "}\n---\n"
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newWiki lays out a small wiki and returns a config pointing at it.
func newWiki(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	write(t, root, "xwiki/Main/Page1.md", pageFile)
	write(t, root, "xwiki/XWiki/alice.md", userFile("alice@x.com"))
	write(t, root, "xwiki/XWiki/bob.md", userFile("bob@x.com"))
	write(t, root, "xwiki/XWiki/carol.md", userFile("carol@x.com"))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Root = root
	cfg.Mail.Properties = map[string]string{core.PropHost: "smtp.example.test"}
	cfg.Sources.FS.Debounce = 10 * time.Millisecond
	return cfg
}

func TestNew_Wiring(t *testing.T) {
	cfg := newWiki(t)
	cfg.Delivery.LogPath = filepath.Join(t.TempDir(), "deliveries.db")
	cfg.Triggers = []string{notify.TriggerBroad, notify.TriggerNarrow}
	cfg.Match = "xwiki/**/XWiki.XWikiComments/*"

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.DeliveryLog)
	assert.Equal(t, []string{"broad", "narrow"}, app.Dispatcher.Triggers())
	assert.Len(t, app.sources, 1)

	cfg.Sources.Kafka.Enabled = true
	cfg.Sources.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Delivery.LogPath = ""
	withKafka, err := New(cfg)
	require.NoError(t, err)
	assert.Len(t, withKafka.sources, 2)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := newWiki(t)
	cfg.Store.Root = filepath.Join(t.TempDir(), "missing")
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = newWiki(t)
	cfg.Triggers = []string{"loud"}
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestReplayAndDispatch(t *testing.T) {
	cfg := newWiki(t)
	preview := &PreviewSender{}
	reg := prometheus.NewRegistry()

	app, err := New(cfg, WithSender(preview), WithRegistry(reg))
	require.NoError(t, err)
	ctx := context.Background()

	events, err := app.ReplayEvents(ctx, "Main.Page1", 1, core.EventAdded)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, core.ScopeObject, events[0].Scope)
	assert.Equal(t, 1, events[0].Reference.Number)
	assert.Equal(t, core.ScopeDocument, events[1].Scope)

	app.Dispatch(ctx, events)

	msgs := preview.Messages()
	require.Len(t, msgs, 1, "only the narrow trigger is enabled by default")
	assert.Equal(t, "[XWiki] Comment added to Page1", msgs[0].Subject)
	assert.Equal(t, "Agreed", msgs[0].Body)
	assert.Equal(t, []string{"alice@x.com", "bob@x.com"}, msgs[0].Recipients)
	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.TriggerResults.WithLabelValues("narrow", "sent")))

	_, err = app.ReplayEvents(ctx, "Main.Page1", 9, core.EventAdded)
	assert.Error(t, err)
	_, err = app.ReplayEvents(ctx, "Main.Missing", 0, core.EventAdded)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = app.ReplayEvents(ctx, "Main.Page1", 0, core.EventKind("deleted"))
	assert.Error(t, err)
}

func TestAddComment(t *testing.T) {
	cfg := newWiki(t)
	preview := &PreviewSender{}
	app, err := New(cfg, WithSender(preview))
	require.NoError(t, err)
	ctx := context.Background()

	zero := 0
	ref, err := app.AddComment(ctx, "Main.Page1", "XWiki.carol", "Me too", &zero)
	require.NoError(t, err)
	assert.Equal(t, "xwiki:Main.Page1^XWiki.XWikiComments[2]", ref.String())

	events, err := app.ReplayEvents(ctx, "Main.Page1", 2, core.EventAdded)
	require.NoError(t, err)
	app.Dispatch(ctx, events)
	msgs := preview.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Me too", msgs[0].Body)
	assert.Equal(t, []string{"alice@x.com", "bob@x.com"}, msgs[0].Recipients)

	missing := 7
	_, err = app.AddComment(ctx, "Main.Page1", "XWiki.carol", "Lost", &missing)
	assert.Error(t, err)

	cfg.Store.ReadOnly = true
	readOnly, err := New(cfg)
	require.NoError(t, err)
	_, err = readOnly.AddComment(ctx, "Main.Page1", "XWiki.carol", "Nope", nil)
	assert.ErrorIs(t, err, core.ErrReadOnly)
}

func TestCheck(t *testing.T) {
	cfg := newWiki(t)
	cfg.Delivery.LogPath = filepath.Join(t.TempDir(), "deliveries.db")
	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	results := app.Check(context.Background())
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err, r.Name)
	}

	cfg.Mail.Properties = nil
	results = app.Check(context.Background())
	assert.ErrorIs(t, results[1].Err, core.ErrNoMailHost)
}

type collectingSender struct {
	mu   sync.Mutex
	msgs []core.Message
}

func (c *collectingSender) SendAsync(ctx context.Context, msgs []core.Message, _ core.Session, l core.DeliveryListener) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msgs...)
	c.mu.Unlock()
	for _, m := range msgs {
		l.OnDelivery(ctx, core.DeliveryOutcome{MessageID: m.ID, Recipients: m.Recipients, Status: core.DeliverySent})
	}
	return nil
}

func (c *collectingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// slowSender reports outcomes from a background goroutine after a delay.
type slowSender struct {
	wg        sync.WaitGroup
	delivered atomic.Int32
}

func (s *slowSender) SendAsync(ctx context.Context, msgs []core.Message, _ core.Session, l core.DeliveryListener) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(50 * time.Millisecond)
		for _, m := range msgs {
			l.OnDelivery(context.WithoutCancel(ctx), core.DeliveryOutcome{MessageID: m.ID, Recipients: m.Recipients, Status: core.DeliverySent, At: time.Now()})
			s.delivered.Add(1)
		}
	}()
	return nil
}

func (s *slowSender) Wait() { s.wg.Wait() }

func TestClose_WaitsForDeliveries(t *testing.T) {
	cfg := newWiki(t)
	cfg.Delivery.LogPath = filepath.Join(t.TempDir(), "deliveries.db")
	sender := &slowSender{}

	app, err := New(cfg, WithSender(sender))
	require.NoError(t, err)

	ctx := context.Background()
	events, err := app.ReplayEvents(ctx, "Main.Page1", 1, core.EventAdded)
	require.NoError(t, err)
	app.Dispatch(ctx, events)

	app.Wait()
	assert.Equal(t, int32(1), sender.delivered.Load())
	recent, err := app.DeliveryLog.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, core.DeliverySent, recent[0].Status)

	require.NoError(t, app.Close())
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := newWiki(t)
	cfg.Delivery.LogPath = filepath.Join(t.TempDir(), "deliveries.db")
	sender := &collectingSender{}

	app, err := New(cfg, WithSender(sender))
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return app.Store.State().(fs.StoreState).WatcherActive
	}, 5*time.Second, 10*time.Millisecond)
	// Let the initial snapshot settle before editing.
	time.Sleep(200 * time.Millisecond)

	doc, err := app.Store.GetDocumentByName(ctx, "Main.Page1")
	require.NoError(t, err)
	doc.Objects = append(doc.Objects, core.Object{
		Class:  core.CommentClass,
		Number: 2,
		Fields: core.Metadata{"comment": "Third", "author": "XWiki.carol", "replyto": 0},
	})
	require.NoError(t, app.Store.Save(ctx, doc))

	require.Eventually(t, func() bool { return sender.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		recent, err := app.DeliveryLog.Recent(context.Background(), 10)
		return err == nil && len(recent) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	logger = NewLogger(config.LogConfig{Level: "error", Format: "text"}, true, &buf)
	logger.Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}
