package graph

import (
	"maps"
	"slices"
)

// Snapshot is a detached, serializable copy of an object.
type Snapshot struct {
	ID            Identity              `json:"id"`
	Entity        string                `json:"entity"`
	Key           string                `json:"key"`
	Attributes    map[string]any        `json:"attributes"`
	Relationships map[string][]Identity `json:"relationships,omitempty"`
}

// Snapshot copies the object's current state.
func (o *Object) Snapshot() Snapshot {
	s := Snapshot{
		ID:            o.id,
		Entity:        o.id.Entity,
		Key:           o.id.Key,
		Attributes:    maps.Clone(o.attrs),
		Relationships: make(map[string][]Identity, len(o.rels)),
	}
	if s.Attributes == nil {
		s.Attributes = map[string]any{}
	}
	for name, ids := range o.rels {
		if len(ids) == 0 {
			continue
		}
		s.Relationships[name] = slices.Clone(ids)
	}
	return s
}
