package editing

import (
	"slices"
	"time"

	"github.com/papercomputeco/graphstack/pkg/graph"
)

// State is the save state of a context.
type State int

const (
	// Clean contexts have no uncommitted changes.
	Clean State = iota

	// Dirty contexts have at least one pending insert, update or delete.
	Dirty

	// Saving contexts are running the save pipeline.
	Saving
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	default:
		return "unknown"
	}
}

// Record describes what one save changed. Records are produced by a
// successful save and handed to every other live context, which merges them
// into its cache. They are never persisted.
type Record struct {
	// Source is the name of the context that saved.
	Source string

	// Inserted maps the temporary identity each inserted object was created
	// with to the permanent identity it was saved under.
	Inserted map[graph.Identity]graph.Identity

	// Updated lists the identities of updated objects.
	Updated []graph.Identity

	// Deleted lists the identities of deleted objects.
	Deleted []graph.Identity

	// Persisted is set when the save reached the durable store.
	Persisted bool

	SavedAt time.Time

	saver *Context
}

// Saver returns the context that produced the record.
func (r *Record) Saver() *Context {
	return r.saver
}

// Touches reports whether the record mentions id.
func (r *Record) Touches(id graph.Identity) bool {
	if slices.Contains(r.Updated, id) || slices.Contains(r.Deleted, id) {
		return true
	}
	for _, perm := range r.Inserted {
		if perm == id {
			return true
		}
	}
	return false
}

// Empty reports whether the record carries no changes.
func (r *Record) Empty() bool {
	return len(r.Inserted) == 0 && len(r.Updated) == 0 && len(r.Deleted) == 0
}
