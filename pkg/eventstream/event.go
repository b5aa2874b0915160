// Package eventstream publishes a transport-neutral event for every save that
// reaches the durable store.
package eventstream

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/graph"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSavePersisted is emitted after a root save is written to the store.
	EventTypeSavePersisted = "graphstack.save.persisted"
)

// SavePersistedEvent is the payload for one persisted save.
type SavePersistedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Changes       SaveChanges `json:"changes"`
}

// EventSource identifies which context produced the save.
type EventSource struct {
	Model        string `json:"model"`
	ModelVersion int    `json:"model_version"`
	Context      string `json:"context"`
}

// SaveChanges lists the identities the save touched.
type SaveChanges struct {
	SavedAt  time.Time         `json:"saved_at"`
	Inserted []InsertedMapping `json:"inserted"`
	Updated  []graph.Identity  `json:"updated"`
	Deleted  []graph.Identity  `json:"deleted"`
}

// InsertedMapping pairs the temporary identity an object was inserted under
// with the permanent identity it was stored as. Temporary is empty when the
// object never had one.
type InsertedMapping struct {
	Temporary *graph.Identity `json:"temporary,omitempty"`
	Permanent graph.Identity  `json:"permanent"`
}

// NewSavePersistedEvent builds the event for a persisted record.
func NewSavePersistedEvent(modelName string, modelVersion int, rec *editing.Record) *SavePersistedEvent {
	ev := &SavePersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeSavePersisted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Model:        modelName,
			ModelVersion: modelVersion,
			Context:      rec.Source,
		},
		Changes: SaveChanges{
			SavedAt:  rec.SavedAt,
			Inserted: make([]InsertedMapping, 0, len(rec.Inserted)),
			Updated:  append([]graph.Identity{}, rec.Updated...),
			Deleted:  append([]graph.Identity{}, rec.Deleted...),
		},
	}

	for from, to := range rec.Inserted {
		m := InsertedMapping{Permanent: to}
		if from.Temporary {
			tmp := from
			m.Temporary = &tmp
		}
		ev.Changes.Inserted = append(ev.Changes.Inserted, m)
	}
	slices.SortFunc(ev.Changes.Inserted, func(a, b InsertedMapping) int {
		return strings.Compare(a.Permanent.String(), b.Permanent.String())
	})

	return ev
}
