package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Root          string     `json:"root"`
	DefaultWiki   string     `json:"default_wiki"`
	ReadOnly      bool       `json:"read_only"`
	Pattern       string     `json:"pattern"`
	WatcherActive bool       `json:"watcher_active"`
	EventsEmitted uint64     `json:"events_emitted"`
	LastEvent     *time.Time `json:"last_event,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreState{
		Root:          s.root,
		DefaultWiki:   s.wiki,
		ReadOnly:      s.readOnly,
		Pattern:       s.pattern,
		WatcherActive: s.watcherActive,
		EventsEmitted: s.emitted,
		LastEvent:     s.lastEvent,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "document-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

func (s *Store) setWatcherActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcherActive = active
}

func (s *Store) recordEvent(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted++
	s.lastEvent = &at
}
