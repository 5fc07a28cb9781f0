package notify

import (
	"context"

	"github.com/aretw0/commentmail/pkg/core"
)

// RecipientBuilder computes who is told about a comment.
type RecipientBuilder struct {
	resolver *Resolver
}

// NewRecipientBuilder creates a RecipientBuilder on top of resolver.
func NewRecipientBuilder(resolver *Resolver) *RecipientBuilder {
	return &RecipientBuilder{resolver: resolver}
}

// Build returns the deduplicated recipients for comment on doc, document author first.
// The result is empty when the document author has no address: the author is the
// mandatory first recipient. With followReplies, the author of the comment being
// answered is added when it can be resolved; a missing parent is skipped.
func (b *RecipientBuilder) Build(ctx context.Context, doc core.Document, comment core.Comment, followReplies bool) ([]string, error) {
	authorEmail, err := b.resolver.ResolveEmail(ctx, doc.Author)
	if err != nil {
		return nil, err
	}
	if authorEmail == "" {
		return nil, nil
	}

	var set core.RecipientSet
	set.Add(authorEmail)

	if followReplies && comment.IsReply() {
		parent, ok := doc.ObjectAt(core.CommentClass, *comment.ReplyTo)
		if ok {
			parentEmail, err := b.resolver.ResolveEmailByName(ctx, parent.Fields.Text(fieldAuthor))
			if err != nil {
				return nil, err
			}
			set.Add(parentEmail)
		}
	}

	return set.Slice(), nil
}
