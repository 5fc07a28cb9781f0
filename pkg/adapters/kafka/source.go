package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/lifecycle"
	"github.com/segmentio/kafka-go"

	"github.com/aretw0/commentmail/pkg/core"
)

// DefaultTopic is the topic comment events are published to.
const DefaultTopic = "comment-events"

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds the Kafka connection settings.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	DefaultWiki string
	Logger      *slog.Logger
}

func (c *Config) normalize() error {
	if len(c.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.GroupID == "" {
		c.GroupID = "commentmail"
	}
	if c.DefaultWiki == "" {
		c.DefaultWiki = core.DefaultWiki
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Source implements core.EventSource by consuming a topic.
type Source struct {
	cfg       Config
	store     core.DocumentStore
	newReader func() messageReader
}

var _ core.EventSource = (*Source)(nil)

// NewSource creates a consumer-group backed source. Snapshots are read from store.
func NewSource(cfg Config, store core.DocumentStore) (*Source, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("kafka source needs a document store")
	}
	return &Source{
		cfg:   cfg,
		store: store,
		newReader: func() messageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:     cfg.Brokers,
				Topic:       cfg.Topic,
				GroupID:     cfg.GroupID,
				MinBytes:    1,
				MaxBytes:    10e6,
				StartOffset: kafka.LastOffset,
			})
		},
	}, nil
}

// Events starts consuming. Undecodable records and unknown documents are
// logged and skipped. The channel is closed when ctx is cancelled or the
// reader fails.
func (s *Source) Events(ctx context.Context) (<-chan core.ChangeEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	reader := s.newReader()
	out := make(chan core.ChangeEvent)
	logger := s.cfg.Logger

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		defer reader.Close()

		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read %s: %w", s.cfg.Topic, err)
			}

			wire, err := Decode(m.Value)
			if err != nil {
				logger.Warn("skipping undecodable record", "topic", m.Topic, "offset", m.Offset, "error", err)
				continue
			}
			ev, err := wire.Resolve(ctx, s.store, s.cfg.DefaultWiki)
			if err != nil {
				logger.Warn("skipping comment event", "event", wire.ID, "document", wire.Document, "error", err)
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		logger.Error("kafka source stopped", "topic", s.cfg.Topic, "error", err)
	}))
	return out, nil
}

// Publisher writes comment events to a topic, keyed by document so that the
// events of one document keep their order.
type Publisher struct {
	w messageWriter
}

// NewPublisher creates a publisher for cfg.Topic.
func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		},
	}, nil
}

// Publish sends ev.
func (p *Publisher) Publish(ctx context.Context, ev core.ChangeEvent) error {
	b, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Document.Reference.String()),
		Value: b,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.w.Close() }

// Ping dials each broker once.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			return fmt.Errorf("dial %s: %w", b, err)
		}
		_ = conn.Close()
	}
	return nil
}
