// Package smtp delivers notification messages through an SMTP server.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/wneessen/go-mail"

	"github.com/aretw0/commentmail/pkg/core"
)

const (
	// DefaultPort is used when the session carries no mail.smtp.port.
	DefaultPort = 25
	// DefaultTimeout bounds one batch, dial included.
	DefaultTimeout = 30 * time.Second
)

// transport is the subset of *mail.Client used to deliver a batch.
type transport interface {
	DialWithContext(ctx context.Context) error
	Send(msgs ...*mail.Msg) error
	Close() error
}

// Sender implements core.MailSender. Each batch is delivered on its own
// supervised goroutine, detached from the caller's cancellation and bounded
// by the batch timeout.
type Sender struct {
	timeout time.Duration
	logger  *slog.Logger
	dial    func(core.Session, time.Duration) (transport, error)
	now     func() time.Time

	inflight sync.WaitGroup
}

var _ core.MailSender = (*Sender)(nil)

// Option configures a Sender.
type Option func(*Sender)

// WithTimeout bounds the delivery of one batch.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSender creates a Sender.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
		dial:    newClient,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendAsync validates the session and the messages, then returns while the
// batch is delivered in the background. Every message gets exactly one
// outcome on listener.
func (s *Sender) SendAsync(ctx context.Context, messages []core.Message, session core.Session, listener core.DeliveryListener) error {
	if len(messages) == 0 {
		return nil
	}
	if listener == nil {
		listener = core.MultiListener(nil)
	}

	client, err := s.dial(session, s.timeout)
	if err != nil {
		return fmt.Errorf("configure smtp client: %w", err)
	}

	from := fromAddress(session)
	built := make([]*mail.Msg, len(messages))
	for i, m := range messages {
		msg, err := buildMessage(from, m)
		if err != nil {
			return fmt.Errorf("build message %s: %w", m.ID, err)
		}
		built[i] = msg
	}

	s.inflight.Add(1)
	lifecycle.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		defer s.inflight.Done()
		return s.deliver(ctx, client, messages, built, listener)
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("mail delivery failed", "host", session.Property(core.PropHost), "error", err)
	}))
	return nil
}

// Wait blocks until every submitted batch has reported its outcomes.
func (s *Sender) Wait() {
	s.inflight.Wait()
}

func (s *Sender) deliver(ctx context.Context, client transport, messages []core.Message, built []*mail.Msg, listener core.DeliveryListener) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := client.DialWithContext(ctx); err != nil {
		for _, m := range messages {
			s.report(ctx, listener, m, err)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.logger.Debug("smtp close failed", "error", err)
		}
	}()

	var failed int
	for i, m := range messages {
		err := ctx.Err()
		if err == nil {
			err = client.Send(built[i])
		}
		if err != nil {
			failed++
		}
		s.report(ctx, listener, m, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d messages not delivered", failed, len(messages))
	}
	return nil
}

func (s *Sender) report(ctx context.Context, listener core.DeliveryListener, m core.Message, err error) {
	outcome := core.DeliveryOutcome{
		MessageID:  m.ID,
		Subject:    m.Subject,
		Recipients: m.Recipients,
		Status:     core.DeliverySent,
		At:         s.now(),
	}
	if err != nil {
		outcome.Status = core.DeliveryFailed
		outcome.Reason = err.Error()
	}
	// Outcomes are recorded even when the batch context has expired.
	listener.OnDelivery(context.WithoutCancel(ctx), outcome)
}

// newClient maps the JavaMail-style session properties onto a go-mail client.
func newClient(session core.Session, timeout time.Duration) (transport, error) {
	host := session.Property(core.PropHost)
	if host == "" {
		return nil, core.ErrNoMailHost
	}
	opts, err := clientOptions(session, timeout)
	if err != nil {
		return nil, err
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func clientOptions(session core.Session, timeout time.Duration) ([]mail.Option, error) {
	port := DefaultPort
	if raw := session.Property(core.PropPort); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid %s %q", core.PropPort, raw)
		}
		port = p
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(tlsPolicy(session.Property(core.PropStartTLS))),
	}

	if isTrue(session.Property(core.PropAuth)) {
		if session.Username == "" {
			return nil, errors.New("smtp auth enabled without a username")
		}
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(session.Username),
			mail.WithPassword(session.Password),
		)
	}
	return opts, nil
}

// tlsPolicy follows mail.smtp.starttls.enable: true requires STARTTLS, false
// disables it, anything else uses it when the server offers it.
func tlsPolicy(value string) mail.TLSPolicy {
	switch strings.ToLower(value) {
	case "true":
		return mail.TLSMandatory
	case "false":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

func isTrue(value string) bool {
	b, err := strconv.ParseBool(value)
	return err == nil && b
}

// fromAddress returns mail.smtp.from, falling back to the authenticated user
// and then to a no-reply address on the mail host.
func fromAddress(session core.Session) string {
	if from := session.Property(core.PropFrom); from != "" {
		return from
	}
	if strings.Contains(session.Username, "@") {
		return session.Username
	}
	return "no-reply@" + session.Property(core.PropHost)
}

func buildMessage(from string, m core.Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from %q: %w", from, err)
	}
	if err := msg.To(m.Recipients...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	if m.ID != "" {
		msg.SetMessageIDWithValue(m.ID)
	}
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}
