package notify

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/commentmail/pkg/core"
)

var (
	// ErrCommentNotFound means the event points at a comment that no longer exists.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrMalformedReply means the replyto field holds something other than an ordinal.
	ErrMalformedReply = errors.New("malformed replyto value")
)

// Comment object fields.
const (
	fieldComment = "comment"
	fieldAuthor  = "author"
	fieldReplyTo = "replyto"
)

// ExtractFirst returns the document's primary comment: the comment object with
// the lowest number. Its replyto field is not read, so ReplyTo is always nil.
func ExtractFirst(doc core.Document) (core.Comment, error) {
	obj, ok := doc.FirstObject(core.CommentClass)
	if !ok {
		return core.Comment{}, ErrCommentNotFound
	}
	return commentFromObject(obj, false)
}

// ExtractByReference returns the comment designated by ref.
func ExtractByReference(doc core.Document, ref core.ObjectReference) (core.Comment, error) {
	obj, ok := doc.Object(ref)
	if !ok {
		return core.Comment{}, ErrCommentNotFound
	}
	return commentFromObject(obj, true)
}

func commentFromObject(obj core.Object, withReply bool) (core.Comment, error) {
	c := core.Comment{
		Number: obj.Number,
		Text:   obj.Fields.Text(fieldComment),
		Author: strings.TrimSpace(obj.Fields.Text(fieldAuthor)),
	}
	if !withReply {
		return c, nil
	}
	replyTo, err := parseReplyTo(obj.Fields[fieldReplyTo])
	if err != nil {
		return core.Comment{}, fmt.Errorf("comment %d: %w", obj.Number, err)
	}
	c.ReplyTo = replyTo
	return c, nil
}

// parseReplyTo keeps "blank" and 0 apart: blank is no reply, 0 is a reply to the first comment.
func parseReplyTo(v any) (*int, error) {
	var n int64
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedReply, val)
		}
		n = parsed
	case int:
		n = int64(val)
	case int8:
		n = int64(val)
	case int16:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case uint8:
		n = int64(val)
	case uint16:
		n = int64(val)
	case uint32:
		n = int64(val)
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReply, val)
		}
		n = int64(val)
	case interface{ Int64() (int64, error) }:
		parsed, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReply, val)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformedReply, v)
	}

	if n < 0 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d out of range", ErrMalformedReply, n)
	}
	ordinal := int(n)
	return &ordinal, nil
}
