package fs

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/commentmail/pkg/core"
)

// diffComments compares two snapshots of a document and derives the events a
// wiki would have raised for the change: one object-scope event per comment
// added or modified, then a single document-scope event.
// A nil prev means the document did not exist before.
func diffComments(prev *core.Document, next core.Document, now time.Time) []core.ChangeEvent {
	var (
		events  []core.ChangeEvent
		added   bool
		updated bool
	)

	for _, obj := range next.ObjectsOf(core.CommentClass) {
		var (
			old   core.Object
			found bool
		)
		if prev != nil {
			old, found = prev.ObjectAt(core.CommentClass, obj.Number)
		}

		var kind core.EventKind
		switch {
		case !found:
			kind, added = core.EventAdded, true
		case !sameFields(old.Fields, obj.Fields):
			kind, updated = core.EventUpdated, true
		default:
			continue
		}

		events = append(events, core.ChangeEvent{
			ID:         uuid.NewString(),
			Kind:       kind,
			Scope:      core.ScopeObject,
			Document:   next,
			Reference:  next.ObjectReference(obj),
			OccurredAt: now,
		})
	}

	if !added && !updated {
		return nil
	}

	kind := core.EventUpdated
	if added {
		kind = core.EventAdded
	}
	return append(events, core.ChangeEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Scope:      core.ScopeDocument,
		Document:   next,
		OccurredAt: now,
	})
}

func sameFields(a, b core.Metadata) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
