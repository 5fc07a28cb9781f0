package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/commentmail/pkg/core"
)

// Resolver turns user identities into notification addresses.
type Resolver struct {
	store core.DocumentStore
}

// NewResolver creates a Resolver reading user documents from store.
func NewResolver(store core.DocumentStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveEmail returns the email of the user document ref.
// A missing user, profile or blank address yields "" and no error.
func (r *Resolver) ResolveEmail(ctx context.Context, ref core.DocumentReference) (string, error) {
	if ref.IsZero() {
		return "", nil
	}
	doc, err := r.store.GetDocument(ctx, ref)
	return emailOf(doc, err, ref.String())
}

// ResolveEmailByName is ResolveEmail for identities stored as names, such as comment authors.
func (r *Resolver) ResolveEmailByName(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	doc, err := r.store.GetDocumentByName(ctx, name)
	return emailOf(doc, err, name)
}

func emailOf(doc core.Document, err error, who string) (string, error) {
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", who, err)
	}

	profile, ok := doc.FirstObject(core.UserClass)
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(profile.Fields.Text("email")), nil
}
