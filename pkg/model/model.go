// Package model describes the object graph schema: the entities the stack
// knows about, their typed attributes and the relationships between them.
//
// A Model is immutable once built. It is loaded from a TOML definition file,
// persisted inside the durable store as JSON, and consulted by editing
// contexts to validate objects before they are saved.
package model

import (
	"fmt"
	"slices"
)

// Definition is the serializable form of a model, as written in model TOML
// files and stored by durable stores.
type Definition struct {
	Name     string             `toml:"name" json:"name"`
	Version  int                `toml:"version" json:"version"`
	Entities []EntityDefinition `toml:"entities" json:"entities"`
}

// EntityDefinition declares one entity.
type EntityDefinition struct {
	Name          string                   `toml:"name" json:"name"`
	Attributes    []AttributeDefinition    `toml:"attributes" json:"attributes,omitempty"`
	Relationships []RelationshipDefinition `toml:"relationships" json:"relationships,omitempty"`
}

// AttributeDefinition declares one attribute of an entity.
type AttributeDefinition struct {
	Name     string `toml:"name" json:"name"`
	Type     string `toml:"type" json:"type"`
	Required bool   `toml:"required" json:"required,omitempty"`
	Default  any    `toml:"default" json:"default,omitempty"`
}

// RelationshipDefinition declares one relationship of an entity.
type RelationshipDefinition struct {
	Name       string `toml:"name" json:"name"`
	Target     string `toml:"target" json:"target"`
	ToMany     bool   `toml:"to_many" json:"to_many,omitempty"`
	Inverse    string `toml:"inverse" json:"inverse,omitempty"`
	DeleteRule string `toml:"delete_rule" json:"delete_rule,omitempty"`
}

// Attribute is a typed attribute of an entity.
type Attribute struct {
	Name     string
	Type     AttributeType
	Required bool
	Default  any
}

// Relationship is an edge from one entity to another.
type Relationship struct {
	Name       string
	Target     string
	ToMany     bool
	Inverse    string
	DeleteRule DeleteRule
}

// Entity describes one kind of object.
type Entity struct {
	name          string
	attributes    []*Attribute
	attrByName    map[string]*Attribute
	relationships []*Relationship
	relByName     map[string]*Relationship
}

// Name returns the entity name.
func (e *Entity) Name() string {
	return e.name
}

// Attributes returns the attributes in declaration order.
func (e *Entity) Attributes() []*Attribute {
	return slices.Clone(e.attributes)
}

// Relationships returns the relationships in declaration order.
func (e *Entity) Relationships() []*Relationship {
	return slices.Clone(e.relationships)
}

// Attribute looks up an attribute by name.
func (e *Entity) Attribute(name string) (*Attribute, error) {
	a, ok := e.attrByName[name]
	if !ok {
		return nil, &SchemaError{Entity: e.name, Member: name, Reason: "unknown attribute"}
	}
	return a, nil
}

// Relationship looks up a relationship by name.
func (e *Entity) Relationship(name string) (*Relationship, error) {
	r, ok := e.relByName[name]
	if !ok {
		return nil, &SchemaError{Entity: e.name, Member: name, Reason: "unknown relationship"}
	}
	return r, nil
}

// Model is the immutable object graph schema.
type Model struct {
	name     string
	version  int
	entities []*Entity
	byName   map[string]*Entity
	def      Definition
}

// New validates a definition and builds a Model from it. Inverse
// relationships must exist on the target entity and point back.
func New(def Definition) (*Model, error) {
	if def.Name == "" {
		return nil, &SchemaError{Reason: "model name is required"}
	}

	m := &Model{
		name:    def.Name,
		version: def.Version,
		byName:  make(map[string]*Entity, len(def.Entities)),
	}

	for _, ed := range def.Entities {
		if ed.Name == "" {
			return nil, &SchemaError{Reason: "entity name is required"}
		}
		if _, dup := m.byName[ed.Name]; dup {
			return nil, &SchemaError{Entity: ed.Name, Reason: "declared twice"}
		}

		e, err := buildEntity(ed)
		if err != nil {
			return nil, err
		}
		m.entities = append(m.entities, e)
		m.byName[e.name] = e
	}

	if err := m.checkRelationships(); err != nil {
		return nil, err
	}

	m.def = cloneDefinition(def)
	return m, nil
}

func buildEntity(ed EntityDefinition) (*Entity, error) {
	e := &Entity{
		name:       ed.Name,
		attrByName: make(map[string]*Attribute, len(ed.Attributes)),
		relByName:  make(map[string]*Relationship, len(ed.Relationships)),
	}

	for _, ad := range ed.Attributes {
		t := AttributeType(ad.Type)
		if !t.Valid() {
			return nil, &SchemaError{Entity: ed.Name, Member: ad.Name, Reason: fmt.Sprintf("unknown type %q", ad.Type)}
		}
		if _, dup := e.attrByName[ad.Name]; dup || ad.Name == "" {
			return nil, &SchemaError{Entity: ed.Name, Member: ad.Name, Reason: "attribute name missing or declared twice"}
		}

		def, err := t.Coerce(ad.Default)
		if err != nil {
			return nil, &SchemaError{Entity: ed.Name, Member: ad.Name, Reason: "bad default: " + err.Error()}
		}

		a := &Attribute{Name: ad.Name, Type: t, Required: ad.Required, Default: def}
		e.attributes = append(e.attributes, a)
		e.attrByName[a.Name] = a
	}

	for _, rd := range ed.Relationships {
		if rd.Name == "" || rd.Target == "" {
			return nil, &SchemaError{Entity: ed.Name, Member: rd.Name, Reason: "relationship needs a name and a target"}
		}
		if _, dup := e.relByName[rd.Name]; dup {
			return nil, &SchemaError{Entity: ed.Name, Member: rd.Name, Reason: "declared twice"}
		}
		if _, clash := e.attrByName[rd.Name]; clash {
			return nil, &SchemaError{Entity: ed.Name, Member: rd.Name, Reason: "name clashes with an attribute"}
		}

		rule := DeleteRule(rd.DeleteRule)
		if rule == "" {
			rule = DeleteNullify
		}
		if !rule.Valid() {
			return nil, &SchemaError{Entity: ed.Name, Member: rd.Name, Reason: fmt.Sprintf("unknown delete rule %q", rd.DeleteRule)}
		}

		r := &Relationship{
			Name:       rd.Name,
			Target:     rd.Target,
			ToMany:     rd.ToMany,
			Inverse:    rd.Inverse,
			DeleteRule: rule,
		}
		e.relationships = append(e.relationships, r)
		e.relByName[r.Name] = r
	}

	return e, nil
}

func (m *Model) checkRelationships() error {
	for _, e := range m.entities {
		for _, r := range e.relationships {
			target, ok := m.byName[r.Target]
			if !ok {
				return &SchemaError{Entity: e.name, Member: r.Name, Reason: fmt.Sprintf("unknown target entity %q", r.Target)}
			}
			if r.Inverse == "" {
				continue
			}
			inv, ok := target.relByName[r.Inverse]
			if !ok {
				return &SchemaError{Entity: e.name, Member: r.Name, Reason: fmt.Sprintf("inverse %s.%s not declared", r.Target, r.Inverse)}
			}
			if inv.Target != e.name || inv.Inverse != r.Name {
				return &SchemaError{Entity: e.name, Member: r.Name, Reason: fmt.Sprintf("inverse %s.%s does not point back", r.Target, r.Inverse)}
			}
		}
	}
	return nil
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// Version returns the model version.
func (m *Model) Version() int {
	return m.version
}

// Entities returns the entity descriptors in declaration order.
func (m *Model) Entities() []*Entity {
	return slices.Clone(m.entities)
}

// Entity looks up an entity by name.
func (m *Model) Entity(name string) (*Entity, error) {
	e, ok := m.byName[name]
	if !ok {
		return nil, &SchemaError{Entity: name, Reason: "unknown entity"}
	}
	return e, nil
}

// Inverse returns the inverse of a relationship, or nil if none is declared.
func (m *Model) Inverse(r *Relationship) *Relationship {
	if r.Inverse == "" {
		return nil
	}
	target, ok := m.byName[r.Target]
	if !ok {
		return nil
	}
	return target.relByName[r.Inverse]
}

// Definition returns a copy of the definition the model was built from.
func (m *Model) Definition() Definition {
	return cloneDefinition(m.def)
}

func cloneDefinition(def Definition) Definition {
	out := Definition{Name: def.Name, Version: def.Version}
	for _, ed := range def.Entities {
		out.Entities = append(out.Entities, EntityDefinition{
			Name:          ed.Name,
			Attributes:    slices.Clone(ed.Attributes),
			Relationships: slices.Clone(ed.Relationships),
		})
	}
	return out
}
