package notify

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aretw0/commentmail/pkg/core"
)

// DefaultSiteName prefixes subjects when no site name is configured.
const DefaultSiteName = "XWiki"

// ErrNoRecipients is returned when a message would have nobody to go to.
var ErrNoRecipients = errors.New("message has no recipients")

// Composer builds notification messages.
type Composer struct {
	siteName string
	newID    func() string
}

// NewComposer creates a Composer whose subjects carry "[siteName]".
func NewComposer(siteName string) *Composer {
	if siteName == "" {
		siteName = DefaultSiteName
	}
	return &Composer{
		siteName: siteName,
		newID:    uuid.NewString,
	}
}

// Subject returns the subject line for a kind of change on doc.
func (c *Composer) Subject(doc core.Document, kind core.EventKind) (string, error) {
	switch kind {
	case core.EventAdded:
		return "[" + c.siteName + "] Comment added to " + doc.DisplayName(), nil
	case core.EventUpdated:
		return "[" + c.siteName + "] Comment updated on " + doc.DisplayName(), nil
	default:
		return "", fmt.Errorf("unknown event kind %q", kind)
	}
}

// Compose builds the plain-text message. The comment text is the body, verbatim.
func (c *Composer) Compose(doc core.Document, kind core.EventKind, text string, recipients []string) (core.Message, error) {
	if len(recipients) == 0 {
		return core.Message{}, ErrNoRecipients
	}
	subject, err := c.Subject(doc, kind)
	if err != nil {
		return core.Message{}, err
	}

	to := make([]string, len(recipients))
	copy(to, recipients)

	return core.Message{
		ID:         c.newID(),
		Subject:    subject,
		Recipients: to,
		Body:       text,
	}, nil
}
