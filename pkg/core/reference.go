package core

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const (
	// DefaultWiki is used when a reference omits its wiki prefix.
	DefaultWiki = "xwiki"
	// DefaultSpace is used when a reference has no space segment.
	DefaultSpace = "Main"
)

// DocumentReference identifies a document: wiki, space (possibly nested with dots) and page name.
type DocumentReference struct {
	Wiki  string
	Space string
	Name  string
}

// String renders the reference as "wiki:Space.Name".
func (r DocumentReference) String() string {
	return r.Wiki + ":" + r.Space + "." + r.Name
}

// IsZero reports whether the reference is empty.
func (r DocumentReference) IsZero() bool {
	return r.Wiki == "" && r.Space == "" && r.Name == ""
}

// Segments returns the path segments of the reference (wiki, spaces..., name).
func (r DocumentReference) Segments() []string {
	segs := []string{r.Wiki}
	segs = append(segs, strings.Split(r.Space, ".")...)
	return append(segs, r.Name)
}

// ParseDocumentReference parses "wiki:Space.Name", "Space.Name" or "Name".
// Missing parts are filled with defaultWiki and DefaultSpace.
func ParseDocumentReference(s, defaultWiki string) (DocumentReference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DocumentReference{}, fmt.Errorf("%w: empty document reference", ErrInvalidReference)
	}

	ref := DocumentReference{Wiki: defaultWiki, Space: DefaultSpace}
	if wiki, rest, ok := strings.Cut(s, ":"); ok {
		if wiki == "" || rest == "" {
			return DocumentReference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
		ref.Wiki = wiki
		s = rest
	}
	if ref.Wiki == "" {
		ref.Wiki = DefaultWiki
	}

	if i := strings.LastIndex(s, "."); i >= 0 {
		ref.Space, ref.Name = s[:i], s[i+1:]
	} else {
		ref.Name = s
	}
	if ref.Space == "" || ref.Name == "" || strings.Contains(ref.Space, "..") {
		return DocumentReference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	return ref, nil
}

// ObjectReference identifies one object attached to a document.
type ObjectReference struct {
	Document DocumentReference
	Class    string
	Number   int
}

// String renders the reference as "wiki:Space.Name^Class[Number]".
func (r ObjectReference) String() string {
	return r.Document.String() + "^" + r.Class + "[" + strconv.Itoa(r.Number) + "]"
}

// IsZero reports whether the reference is empty.
func (r ObjectReference) IsZero() bool {
	return r.Document.IsZero() && r.Class == "" && r.Number == 0
}

// Path returns the slash separated form used for glob matching:
// wiki/Space/.../Name/Class/Number.
func (r ObjectReference) Path() string {
	segs := append(r.Document.Segments(), r.Class, strconv.Itoa(r.Number))
	return path.Join(segs...)
}

// ParseObjectReference parses "wiki:Space.Name^Class[Number]".
func ParseObjectReference(s, defaultWiki string) (ObjectReference, error) {
	docPart, objPart, ok := strings.Cut(s, "^")
	if !ok {
		return ObjectReference{}, fmt.Errorf("%w: missing object part in %q", ErrInvalidReference, s)
	}

	doc, err := ParseDocumentReference(docPart, defaultWiki)
	if err != nil {
		return ObjectReference{}, err
	}

	open := strings.LastIndex(objPart, "[")
	if open <= 0 || !strings.HasSuffix(objPart, "]") {
		return ObjectReference{}, fmt.Errorf("%w: malformed object part %q", ErrInvalidReference, objPart)
	}
	number, err := strconv.Atoi(objPart[open+1 : len(objPart)-1])
	if err != nil || number < 0 {
		return ObjectReference{}, fmt.Errorf("%w: bad object number in %q", ErrInvalidReference, objPart)
	}

	return ObjectReference{
		Document: doc,
		Class:    objPart[:open],
		Number:   number,
	}, nil
}
