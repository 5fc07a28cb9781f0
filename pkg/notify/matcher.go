package notify

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/commentmail/pkg/core"
)

// ReferenceMatcher decides whether an object event concerns the narrow trigger.
type ReferenceMatcher interface {
	Match(ref core.ObjectReference) bool
}

// ClassMatcher matches every object of one class, wherever it lives.
type ClassMatcher struct {
	class string
}

// NewClassMatcher creates a ClassMatcher for class.
func NewClassMatcher(class string) ClassMatcher {
	return ClassMatcher{class: class}
}

func (m ClassMatcher) Match(ref core.ObjectReference) bool {
	return ref.Class == m.class && !ref.Document.IsZero()
}

// GlobMatcher matches the slash separated object path (wiki/Space/Name/Class/Number)
// against a doublestar pattern.
type GlobMatcher struct {
	pattern string
}

// NewGlobMatcher validates pattern and returns a matcher for it.
func NewGlobMatcher(pattern string) (GlobMatcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return GlobMatcher{}, fmt.Errorf("invalid reference pattern %q", pattern)
	}
	return GlobMatcher{pattern: pattern}, nil
}

func (m GlobMatcher) Match(ref core.ObjectReference) bool {
	ok, err := doublestar.Match(m.pattern, ref.Path())
	return err == nil && ok
}

// Pattern returns the glob the matcher was built with.
func (m GlobMatcher) Pattern() string {
	return m.pattern
}
