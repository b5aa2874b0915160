package graph

import (
	"maps"
	"slices"
)

// Object is a single node of the object graph: an identity, its attribute
// values and its outgoing relationships.
//
// Objects are owned by exactly one editing context. The setters exist for the
// editing and store layers; code holding an object fetched from a context
// should change it through that context so the change is tracked.
type Object struct {
	id     Identity
	origin Identity
	attrs  map[string]any
	rels   map[string][]Identity
}

// New creates an object for the given entity with no identity. An editing
// context mints a temporary identity for it on insert.
func New(entity string) *Object {
	return &Object{
		id:    Identity{Entity: entity},
		attrs: make(map[string]any),
		rels:  make(map[string][]Identity),
	}
}

// NewWithIdentity creates an object carrying an existing identity, as stores
// do when they materialize rows.
func NewWithIdentity(id Identity) *Object {
	o := New(id.Entity)
	o.id = id
	return o
}

// ID returns the object's current identity.
func (o *Object) ID() Identity {
	return o.id
}

// Entity returns the entity name the object belongs to.
func (o *Object) Entity() string {
	return o.id.Entity
}

// Origin returns the temporary identity the object was inserted with, or the
// zero identity if it never had one.
func (o *Object) Origin() Identity {
	return o.origin
}

// HasIdentity reports whether the object has been given a key.
func (o *Object) HasIdentity() bool {
	return o.id.Key != ""
}

// SetIdentity replaces the identity. The first temporary identity an object
// receives is remembered as its origin.
func (o *Object) SetIdentity(id Identity) {
	if id.Temporary && o.origin.IsZero() {
		o.origin = id
	}
	o.id = id
}

// Get returns the value of an attribute, or nil when unset.
func (o *Object) Get(name string) any {
	return o.attrs[name]
}

// Lookup returns the value of an attribute and whether it is set.
func (o *Object) Lookup(name string) (any, bool) {
	v, ok := o.attrs[name]
	return v, ok
}

// Set stores an attribute value. A nil value clears the attribute.
func (o *Object) Set(name string, value any) {
	if value == nil {
		delete(o.attrs, name)
		return
	}
	o.attrs[name] = value
}

// Attributes returns a copy of the attribute values.
func (o *Object) Attributes() map[string]any {
	return maps.Clone(o.attrs)
}

// Related returns a copy of the identities a relationship points at.
func (o *Object) Related(name string) []Identity {
	return slices.Clone(o.rels[name])
}

// Relationships returns a copy of every relationship.
func (o *Object) Relationships() map[string][]Identity {
	out := make(map[string][]Identity, len(o.rels))
	for name, ids := range o.rels {
		out[name] = slices.Clone(ids)
	}
	return out
}

// SetRelated replaces a relationship's targets.
func (o *Object) SetRelated(name string, ids []Identity) {
	if len(ids) == 0 {
		delete(o.rels, name)
		return
	}
	o.rels[name] = slices.Clone(ids)
}

// AddRelated appends a target unless it is already present. It reports
// whether the relationship changed.
func (o *Object) AddRelated(name string, id Identity) bool {
	if slices.Contains(o.rels[name], id) {
		return false
	}
	o.rels[name] = append(o.rels[name], id)
	return true
}

// RemoveRelated drops a target. It reports whether the relationship changed.
func (o *Object) RemoveRelated(name string, id Identity) bool {
	ids := o.rels[name]
	i := slices.Index(ids, id)
	if i < 0 {
		return false
	}
	ids = slices.Delete(ids, i, i+1)
	if len(ids) == 0 {
		delete(o.rels, name)
	} else {
		o.rels[name] = ids
	}
	return true
}

// ReplaceReferences rewrites every relationship entry equal to from into to.
// It reports whether anything changed.
func (o *Object) ReplaceReferences(from, to Identity) bool {
	changed := false
	for _, ids := range o.rels {
		for i, id := range ids {
			if id == from {
				ids[i] = to
				changed = true
			}
		}
	}
	return changed
}

// Clone returns a deep copy. Attribute values are copied shallowly except
// byte slices.
func (o *Object) Clone() *Object {
	c := &Object{
		id:     o.id,
		origin: o.origin,
		attrs:  make(map[string]any, len(o.attrs)),
		rels:   o.Relationships(),
	}
	for k, v := range o.attrs {
		if b, ok := v.([]byte); ok {
			v = slices.Clone(b)
		}
		c.attrs[k] = v
	}
	return c
}

// CopyFrom overwrites this object's values with src's, keeping the receiver's
// pointer identity. Used when a context refreshes a cached object in place.
func (o *Object) CopyFrom(src *Object) {
	fresh := src.Clone()
	o.id = fresh.id
	o.attrs = fresh.attrs
	o.rels = fresh.rels
	if o.origin.IsZero() {
		o.origin = fresh.origin
	}
}
