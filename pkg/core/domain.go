// Package core holds the domain model of comment notifications and the ports
// through which the pipeline reaches documents, events and mail.
package core

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// CommentClass is the class of comment objects attached to documents.
	CommentClass = "XWiki.XWikiComments"
	// UserClass is the class of the profile object carried by user documents.
	UserClass = "XWiki.XWikiUsers"
)

// Metadata represents the flexible key-value pairs associated with a document or object.
type Metadata map[string]any

// Text returns the value of key rendered as a string, or "" when absent.
func (m Metadata) Text(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Object is a structured attachment on a document (a comment, a user profile...).
type Object struct {
	Class  string
	Number int
	Fields Metadata
}

// Document is a read-only snapshot of a document at event time.
type Document struct {
	Reference DocumentReference
	Title     string
	// Author is the user document that last saved this version.
	Author   DocumentReference
	Content  string
	Objects  []Object
	Metadata Metadata
}

// DisplayName is the human readable name used in notifications.
func (d Document) DisplayName() string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return t
	}
	return d.Reference.String()
}

// FirstObject returns the object of the given class with the lowest number.
func (d Document) FirstObject(class string) (Object, bool) {
	var (
		found Object
		ok    bool
	)
	for _, o := range d.Objects {
		if o.Class != class {
			continue
		}
		if !ok || o.Number < found.Number {
			found, ok = o, true
		}
	}
	return found, ok
}

// ObjectAt returns the object of the given class at ordinal n.
func (d Document) ObjectAt(class string, n int) (Object, bool) {
	for _, o := range d.Objects {
		if o.Class == class && o.Number == n {
			return o, true
		}
	}
	return Object{}, false
}

// Object returns the object designated by ref, which must point at this document.
func (d Document) Object(ref ObjectReference) (Object, bool) {
	if ref.Document != d.Reference {
		return Object{}, false
	}
	return d.ObjectAt(ref.Class, ref.Number)
}

// ObjectsOf returns the objects of a class ordered by number.
func (d Document) ObjectsOf(class string) []Object {
	var out []Object
	for _, o := range d.Objects {
		if o.Class == class {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// ObjectReference builds the reference of one of the document's objects.
func (d Document) ObjectReference(o Object) ObjectReference {
	return ObjectReference{Document: d.Reference, Class: o.Class, Number: o.Number}
}

// Comment is the extracted view of a comment object.
type Comment struct {
	Number int
	Text   string
	// Author is the name of the commenter's user document.
	Author string
	// ReplyTo is the ordinal of the comment this one answers. Nil means top-level;
	// zero is a valid target.
	ReplyTo *int
}

// IsReply reports whether the comment answers another comment.
func (c Comment) IsReply() bool {
	return c.ReplyTo != nil
}
